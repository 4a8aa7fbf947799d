package space

import (
	"fmt"
	"math/rand/v2"
)

// Discrete is the integer range {Start, ..., Start+N-1}.
type Discrete struct {
	N     int64
	Start int64
}

// NewDiscrete creates a Discrete space with n elements starting at 0.
func NewDiscrete(n int64) *Discrete {
	return &Discrete{N: n}
}

// NewDiscreteStart creates a Discrete space with n elements starting at start.
func NewDiscreteStart(n, start int64) *Discrete {
	return &Discrete{N: n, Start: start}
}

func (d *Discrete) Kind() Kind { return KindDiscrete }

func (d *Discrete) Canonicalize(v Value) (Value, error) {
	x, ok := toInt64(v)
	if !ok || x < d.Start || x >= d.Start+d.N {
		return nil, invalid(d, v)
	}
	return x, nil
}

func (d *Discrete) FlatDim() int { return int(d.N) }

func (d *Discrete) Flatten(v Value) ([]float64, error) {
	c, err := d.Canonicalize(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, d.N)
	out[c.(int64)-d.Start] = 1
	return out, nil
}

func (d *Discrete) Unflatten(x []float64) (Value, error) {
	if len(x) != int(d.N) {
		return nil, fmt.Errorf("%w: flat length %d, want %d", ErrInvalidValue, len(x), d.N)
	}
	for i, f := range x {
		if f != 0 {
			return d.Start + int64(i), nil
		}
	}
	return nil, fmt.Errorf("%w: one-hot vector has no set element", ErrInvalidValue)
}

func (d *Discrete) Encode(values []Value) (*Column, error) {
	ints := make([]int64, len(values))
	for i, v := range values {
		c, err := d.Canonicalize(v)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		ints[i] = c.(int64)
	}
	return &Column{Kind: KindDiscrete, Len: len(values), Width: 1, Ints: ints}, nil
}

func (d *Discrete) Decode(c *Column) ([]Value, error) {
	if err := checkLeafColumn(c, KindDiscrete, 1, false); err != nil {
		return nil, err
	}
	out := make([]Value, c.Len)
	for i, x := range c.Ints {
		out[i] = x
	}
	return out, nil
}

func (d *Discrete) Sample(r *rand.Rand) Value {
	return d.Start + r.Int64N(d.N)
}

func (d *Discrete) String() string {
	if d.Start != 0 {
		return fmt.Sprintf("Discrete(%d, start=%d)", d.N, d.Start)
	}
	return fmt.Sprintf("Discrete(%d)", d.N)
}

func (d *Discrete) descriptor() descriptor {
	return descriptor{Type: KindDiscrete.String(), N: d.N, Start: d.Start}
}

func (d *Discrete) flatBounds() (low, high []float64) {
	low = make([]float64, d.N)
	high = make([]float64, d.N)
	for i := range high {
		high[i] = 1
	}
	return low, high
}

func toInt64(v Value) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint8:
		return int64(x), true
	default:
		return 0, false
	}
}
