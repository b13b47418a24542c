package wallet

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Exclusive serializes access to a signer. Wallet sessions are single-threaded.
type Exclusive struct {
	signer Signer
	sem    *semaphore.Weighted
}

func NewExclusive(signer Signer) *Exclusive {
	return &Exclusive{signer: signer, sem: semaphore.NewWeighted(1)}
}

// Do runs fn while holding the signer. It blocks until the signer is free or ctx is done.
func (e *Exclusive) Do(ctx context.Context, fn func(Signer) error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for signer %s: %w", e.signer.Kind(), err)
	}
	defer e.sem.Release(1)
	return fn(e.signer)
}
