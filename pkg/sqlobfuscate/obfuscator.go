// SPDX-License-Identifier: GPL-3.0-or-later

// Package sqlobfuscate strips literals from MySQL statements and execution
// plans and computes the signatures used to group them.
package sqlobfuscate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/DataDog/go-sqllexer"
	"github.com/cespare/xxhash/v2"
)

type Obfuscator struct {
	obfuscator *sqllexer.Obfuscator
	normalizer *sqllexer.Normalizer
}

func New() *Obfuscator {
	return &Obfuscator{
		obfuscator: sqllexer.NewObfuscator(
			sqllexer.WithReplaceDigits(true),
			sqllexer.WithReplaceBoolean(true),
			sqllexer.WithReplaceNull(true),
		),
		normalizer: sqllexer.NewNormalizer(
			sqllexer.WithCollectTables(false),
			sqllexer.WithCollectCommands(false),
			sqllexer.WithCollectComments(false),
			sqllexer.WithKeepSQLAlias(true),
		),
	}
}

// ObfuscateSQL replaces literals with placeholders and normalizes whitespace
// and comments.
func (o *Obfuscator) ObfuscateSQL(query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", errors.New("empty statement")
	}
	out, _, err := sqllexer.ObfuscateAndNormalize(query, o.obfuscator, o.normalizer, sqllexer.WithDBMS(sqllexer.DBMSMySQL))
	if err != nil {
		return "", fmt.Errorf("obfuscate statement: %w", err)
	}
	return out, nil
}

func (o *Obfuscator) obfuscateFragment(s string) string {
	return o.obfuscator.Obfuscate(s, sqllexer.WithDBMS(sqllexer.DBMSMySQL))
}

// ComputeSignature returns a stable hex hash of s.
func ComputeSignature(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
