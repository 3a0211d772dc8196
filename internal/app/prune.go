package app

import (
	"context"
	"errors"
	"time"
)

// Prune deletes state, price samples, and alerts older than the cutoff.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	if opts.OlderThan <= 0 {
		return errors.New("--older-than must be positive")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cutoff := time.Now().UTC().Add(-opts.OlderThan)
	if opts.DryRun {
		a.Logger.Info().Time("cutoff", cutoff).Msg("dry run; nothing deleted")
		return nil
	}

	states, err := store.PruneStateBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	samples, err := store.PruneSamplesBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return err
	}

	a.Logger.Info().
		Time("cutoff", cutoff).
		Int64("states", states).
		Int64("samples", samples).
		Msg("prune complete")
	return nil
}
