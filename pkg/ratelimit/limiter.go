// SPDX-License-Identifier: GPL-3.0-or-later

// Package ratelimit paces a loop to a constant number of iterations per second.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces successive Wait calls at least 1/rate seconds apart.
// Slow iterations do not bank credit: a loop that overruns the interval
// simply runs back-to-back.
type Limiter struct {
	mu   sync.Mutex
	lim  *rate.Limiter
	last time.Time // when the last Wait returned
}

func New(perSecond float64) (*Limiter, error) {
	if err := validate(perSecond); err != nil {
		return nil, err
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(perSecond), 1)}, nil
}

// Wait blocks until the next iteration may start or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	lim := l.lim
	l.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.last = time.Now()
	l.mu.Unlock()
	return nil
}

// SetRate applies to the following Wait calls, measured from the last
// returned Wait. A wait already in progress keeps the delay it was given.
func (l *Limiter) SetRate(perSecond float64) error {
	if err := validate(perSecond); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.last.IsZero() {
		l.lim.SetLimit(rate.Limit(perSecond))
		return nil
	}

	// tokens accrued at the old rate must not shorten the new interval,
	// so start from an empty bucket as of the last Wait
	lim := rate.NewLimiter(rate.Limit(perSecond), 1)
	lim.ReserveN(l.last, 1)
	l.lim = lim
	return nil
}

func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.lim.Limit())
}

func validate(perSecond float64) error {
	if perSecond <= 0 {
		return fmt.Errorf("invalid rate %v: must be positive", perSecond)
	}
	return nil
}
