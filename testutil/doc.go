// Package testutil provides deterministic fixtures for tests.
//
// This package is intended for use in tests only.
//
//	rng := testutil.NewRNG(4711)
//	obs, act := testutil.BoxObservations(4), testutil.TwoActions()
//	buffers := rng.Buffers(10, 5, obs, act)
package testutil
