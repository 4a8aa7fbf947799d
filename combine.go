package episodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/episodb/internal/storage"
	"github.com/hupe1980/episodb/internal/view"
	"github.com/hupe1980/episodb/space"
)

// Combine creates a dataset named name in dir holding the visible episodes
// of every input, in input order and then view order, renumbered from zero.
//
// The inputs must share format version, environment spec, spaces and
// flatten flags; otherwise Combine fails with ErrIncompatibleSchema and
// nothing is created. If copying fails, the partially written dataset is
// removed.
func Combine(ctx context.Context, dir, name string, datasets []*Dataset, optFns ...Option) (_ *Dataset, err error) {
	o := applyOptions(optFns)
	start := time.Now()

	names := make([]string, len(datasets))
	for i, ds := range datasets {
		names[i] = ds.Name()
	}
	copied := 0
	defer func() {
		o.metricsCollector.RecordCombine(len(datasets), copied, time.Since(start), err)
		o.logger.WithDataset(name).LogCombine(ctx, names, copied, err)
	}()

	a, err := combinedAttributes(name, datasets)
	if err != nil {
		return nil, err
	}

	sopts, err := o.storageOptions()
	if err != nil {
		return nil, err
	}
	b, err := storage.Create(ctx, dir, a, sopts...)
	if err != nil {
		return nil, translateError(err)
	}

	for _, ds := range datasets {
		for ep, rerr := range ds.IterateEpisodes(ctx) {
			if rerr == nil {
				_, rerr = b.WriteEpisode(ctx, ep)
			}
			if rerr != nil {
				if derr := b.Delete(ctx); derr != nil {
					rerr = errors.Join(rerr, derr)
				}
				return nil, translateError(rerr)
			}
			copied++
		}
	}

	total := b.Attributes()
	return newDataset(newSharedBackend(b), view.Full(total.TotalEpisodes), total.TotalSteps, o.rng, o), nil
}

func combinedAttributes(name string, datasets []*Dataset) (*Attributes, error) {
	if len(datasets) == 0 {
		return nil, fmt.Errorf("%w: no datasets to combine", ErrIncompatibleSchema)
	}

	first := datasets[0].backend.Attributes()
	names := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		if _, err := ds.snapshot(); err != nil {
			return nil, err
		}
		a := ds.backend.Attributes()
		switch {
		case a.FormatVersion != first.FormatVersion:
			return nil, fmt.Errorf("%w: %s has format version %s, %s has %s",
				ErrIncompatibleSchema, a.DatasetName, a.FormatVersion, first.DatasetName, first.FormatVersion)
		case a.EnvSpec != first.EnvSpec:
			return nil, fmt.Errorf("%w: %s has env spec %q, %s has %q",
				ErrIncompatibleSchema, a.DatasetName, a.EnvSpec, first.DatasetName, first.EnvSpec)
		case !space.Equal(ds.ObservationSpace(), datasets[0].ObservationSpace()):
			return nil, fmt.Errorf("%w: %s has a different observation space", ErrIncompatibleSchema, a.DatasetName)
		case !space.Equal(ds.ActionSpace(), datasets[0].ActionSpace()):
			return nil, fmt.Errorf("%w: %s has a different action space", ErrIncompatibleSchema, a.DatasetName)
		case a.FlattenObservations != first.FlattenObservations || a.FlattenActions != first.FlattenActions:
			return nil, fmt.Errorf("%w: %s has different flatten flags", ErrIncompatibleSchema, a.DatasetName)
		}
		names = append(names, a.DatasetName)
	}

	return &Attributes{
		DatasetName:         name,
		EnvSpec:             first.EnvSpec,
		FormatVersion:       first.FormatVersion,
		FlattenObservations: first.FlattenObservations,
		FlattenActions:      first.FlattenActions,
		CombinedDatasets:    names,
		ObservationSpace:    first.ObservationSpace,
		ActionSpace:         first.ActionSpace,
	}, nil
}
