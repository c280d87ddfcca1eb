// Package billno produces human-readable, date-stamped bill numbers.
//
// Numbers follow YYMMDD-NNNN with a random 4-digit suffix. Uniqueness is
// ultimately guaranteed by the per-domain unique index on bill_no; the
// collision-check loop here only keeps insert retries rare.
package billno

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrExhausted is returned when the generator cannot find a free number
// within the attempt budget. Callers abort their transaction.
var ErrExhausted = errors.New("billno: attempts exhausted")

const DefaultMaxAttempts = 25

// Generate formats a candidate bill number for the given reference time.
func Generate(ref time.Time) string {
	suffix := 1000 + rand.IntN(9000)
	return fmt.Sprintf("%s-%04d", ref.UTC().Format("060102"), suffix)
}

// Reserve loops generate-then-check until exists reports a free number or
// the attempt budget runs out. The exists check must run against the same
// store transaction that will insert the number.
func Reserve(ctx context.Context, ref time.Time, maxAttempts int, exists func(ctx context.Context, billNo string) (bool, error)) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := Generate(ref)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}
