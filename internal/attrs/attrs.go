package attrs

import (
	"slices"
	"time"
)

// Attributes are the root attributes of a dataset backend.
type Attributes struct {
	// ID is the commit sequence number, incremented by every Save.
	ID uint64 `cbor:"id"`

	DatasetName   string `cbor:"dataset_name"`
	EnvSpec       string `cbor:"env_spec,omitempty"`
	FormatVersion string `cbor:"format_version"`

	TotalEpisodes uint64 `cbor:"total_episodes"`
	TotalSteps    uint64 `cbor:"total_steps"`

	FlattenObservations bool `cbor:"flatten_observations"`
	FlattenActions      bool `cbor:"flatten_actions"`

	CombinedDatasets []string `cbor:"combined_datasets,omitempty"`

	ObservationSpace []byte `cbor:"observation_space"`
	ActionSpace      []byte `cbor:"action_space"`

	Compression string    `cbor:"compression,omitempty"`
	CreatedAt   time.Time `cbor:"created_at"`
	Author      string    `cbor:"author,omitempty"`
	CodeURL     string    `cbor:"code_url,omitempty"`
}

// Clone returns a deep copy.
func (a *Attributes) Clone() *Attributes {
	c := *a
	c.CombinedDatasets = slices.Clone(a.CombinedDatasets)
	c.ObservationSpace = slices.Clone(a.ObservationSpace)
	c.ActionSpace = slices.Clone(a.ActionSpace)
	return &c
}
