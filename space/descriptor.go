package space

import (
	"fmt"

	"github.com/hupe1980/episodb/codec"
)

// descriptor is the serialized definition of a space.
type descriptor struct {
	Type   string       `cbor:"type"`
	N      int64        `cbor:"n,omitempty"`
	Start  int64        `cbor:"start,omitempty"`
	Low    []float64    `cbor:"low,omitempty"`
	High   []float64    `cbor:"high,omitempty"`
	Shape  []int        `cbor:"shape,omitempty"`
	Nvec   []int64      `cbor:"nvec,omitempty"`
	Keys   []string     `cbor:"keys,omitempty"`
	Spaces []descriptor `cbor:"spaces,omitempty"`
}

// Marshal serializes the definition of s.
func Marshal(s Space) ([]byte, error) {
	return codec.CBOR{}.Marshal(s.descriptor())
}

// Unmarshal reconstructs a space from Marshal output.
func Unmarshal(data []byte) (Space, error) {
	var d descriptor
	if err := (codec.CBOR{}).Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	return fromDescriptor(d)
}

func fromDescriptor(d descriptor) (Space, error) {
	switch d.Type {
	case KindDiscrete.String():
		if d.N <= 0 {
			return nil, fmt.Errorf("%w: discrete n=%d", ErrInvalidDescriptor, d.N)
		}
		return NewDiscreteStart(d.N, d.Start), nil
	case KindBox.String():
		b, err := NewBoxBounds(d.Low, d.High, d.Shape...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
		}
		return b, nil
	case KindMultiDiscrete.String():
		for _, k := range d.Nvec {
			if k <= 0 {
				return nil, fmt.Errorf("%w: multi_discrete nvec=%v", ErrInvalidDescriptor, d.Nvec)
			}
		}
		return NewMultiDiscrete(d.Nvec...), nil
	case KindMultiBinary.String():
		if d.N < 0 {
			return nil, fmt.Errorf("%w: multi_binary n=%d", ErrInvalidDescriptor, d.N)
		}
		return NewMultiBinary(int(d.N)), nil
	case KindDict.String():
		if len(d.Keys) != len(d.Spaces) {
			return nil, fmt.Errorf("%w: dict has %d keys and %d spaces", ErrInvalidDescriptor, len(d.Keys), len(d.Spaces))
		}
		subs := make(map[string]Space, len(d.Keys))
		for i, k := range d.Keys {
			s, err := fromDescriptor(d.Spaces[i])
			if err != nil {
				return nil, err
			}
			subs[k] = s
		}
		return NewDict(subs), nil
	case KindTuple.String():
		subs := make([]Space, len(d.Spaces))
		for i, sd := range d.Spaces {
			s, err := fromDescriptor(sd)
			if err != nil {
				return nil, err
			}
			subs[i] = s
		}
		return NewTuple(subs...), nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidDescriptor, d.Type)
	}
}
