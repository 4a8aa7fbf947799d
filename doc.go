// Package episodb is an embedded store for offline reinforcement-learning
// datasets.
//
// A dataset is an append-only sequence of recorded episodes plus root
// attributes: name, environment spec, observation and action spaces and
// totals. Episodes are addressed by contiguous ids assigned at write time.
//
// # Quick Start
//
//	ctx := context.Background()
//	ds, _ := episodb.Create(ctx, "./cartpole", episodb.Metadata{
//	    Name:             "cartpole-random-v0",
//	    EnvSpec:          "CartPole-v1",
//	    ObservationSpace: space.NewBox(-4.8, 4.8, 4),
//	    ActionSpace:      space.NewDiscrete(2),
//	})
//	defer ds.Close()
//
//	_ = ds.UpdateDatasetFromBuffer(ctx, buffers)
//
//	for ep, err := range ds.IterateEpisodes(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(ep.ID, ep.TotalSteps, ep.Return())
//	}
//
// # Views
//
// A [Dataset] is a handle: a backend shared with other handles plus the
// handle's own view of episode ids. [Dataset.FilterEpisodes] returns a new
// handle over the episodes matching a predicate:
//
//	long, _ := ds.FilterEpisodes(ctx, func(ep *episode.Episode) bool {
//	    return ep.TotalSteps >= 100
//	})
//
// Appending through a handle adds the new episodes to the backend and to that
// handle's view only. Sibling handles keep their view and totals.
//
// # Durability
//
// Every append writes the record, then its index entry, then commits new
// totals by rotating the attributes file. A crash before the commit leaves
// the previous totals, so readers never see ids without data.
// [WithDurability] controls whether each write is synced before committing.
//
// # Registry
//
// A [Registry] manages named datasets under a root directory
// ($EPISODB_DATASETS_PATH or ~/.episodb/datasets). Package remote copies
// dataset directories to and from blob stores such as S3 or MinIO.
//
// # Errors
//
// All errors returned by this package can be matched with errors.Is against
// the sentinels in errors.go. Schema failures can be inspected with
// errors.As and [*SchemaMismatchError].
package episodb
