package episode

import (
	"fmt"

	"github.com/hupe1980/episodb/space"
)

// Payload is the persisted form of an episode. The id is not part of the
// payload: it is the position of the record in the backend's index.
type Payload struct {
	Seed         *int64        `cbor:"seed,omitempty"`
	Observations *space.Column `cbor:"observations"`
	Actions      *space.Column `cbor:"actions"`
	Rewards      []float64     `cbor:"rewards"`
	Terminations []bool        `cbor:"terminations"`
	Truncations  []bool        `cbor:"truncations"`
}

// Encode converts an episode into its payload using the stored spaces.
func Encode(ep *Episode, obs, act space.Space) (*Payload, error) {
	oc, err := obs.Encode(ep.Observations)
	if err != nil {
		return nil, fmt.Errorf("observations: %w", err)
	}
	ac, err := act.Encode(ep.Actions)
	if err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	return &Payload{
		Seed:         ep.Seed,
		Observations: oc,
		Actions:      ac,
		Rewards:      nonNilFloats(ep.Rewards),
		Terminations: nonNilBools(ep.Terminations),
		Truncations:  nonNilBools(ep.Truncations),
	}, nil
}

// Decode converts a payload back into an episode with the given id.
func Decode(id uint64, p *Payload, obs, act space.Space) (*Episode, error) {
	o, err := obs.Decode(p.Observations)
	if err != nil {
		return nil, fmt.Errorf("observations: %w", err)
	}
	a, err := act.Decode(p.Actions)
	if err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	return &Episode{
		ID:           id,
		Seed:         p.Seed,
		TotalSteps:   len(p.Rewards),
		Observations: o,
		Actions:      a,
		Rewards:      nonNilFloats(p.Rewards),
		Terminations: nonNilBools(p.Terminations),
		Truncations:  nonNilBools(p.Truncations),
	}, nil
}

func nonNilFloats(x []float64) []float64 {
	if x == nil {
		return []float64{}
	}
	return x
}

func nonNilBools(x []bool) []bool {
	if x == nil {
		return []bool{}
	}
	return x
}
