// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Submitter receives finished samples. Ownership of the slice passes to it.
type Submitter interface {
	SubmitEvents(ctx context.Context, events []Sample) (int, error)
}

// DiscardSubmitter drops everything, it is the default when no sink is set.
var DiscardSubmitter Submitter = discardSubmitter{}

type discardSubmitter struct{}

func (discardSubmitter) SubmitEvents(_ context.Context, events []Sample) (int, error) {
	return len(events), nil
}

// NewJSONLinesSubmitter writes one JSON document per sample.
func NewJSONLinesSubmitter(w io.Writer) *JSONLinesSubmitter {
	return &JSONLinesSubmitter{enc: json.NewEncoder(w)}
}

type JSONLinesSubmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (s *JSONLinesSubmitter) SubmitEvents(ctx context.Context, events []Sample) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.enc.Encode(&events[i]); err != nil {
			return i, err
		}
	}
	return len(events), nil
}
