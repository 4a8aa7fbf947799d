package space

import (
	"fmt"
	"math/rand/v2"
)

// MultiDiscrete is a vector of independent discrete ranges [0, Nvec[i]).
type MultiDiscrete struct {
	Nvec []int64
}

// NewMultiDiscrete creates a MultiDiscrete space.
func NewMultiDiscrete(nvec ...int64) *MultiDiscrete {
	return &MultiDiscrete{Nvec: append([]int64(nil), nvec...)}
}

func (m *MultiDiscrete) Kind() Kind { return KindMultiDiscrete }

func (m *MultiDiscrete) Canonicalize(v Value) (Value, error) {
	x, ok := toInt64Slice(v)
	if !ok || len(x) != len(m.Nvec) {
		return nil, invalid(m, v)
	}
	for i, e := range x {
		if e < 0 || e >= m.Nvec[i] {
			return nil, invalid(m, v)
		}
	}
	return x, nil
}

func (m *MultiDiscrete) FlatDim() int {
	n := 0
	for _, k := range m.Nvec {
		n += int(k)
	}
	return n
}

func (m *MultiDiscrete) Flatten(v Value) ([]float64, error) {
	c, err := m.Canonicalize(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, m.FlatDim())
	off := 0
	for i, e := range c.([]int64) {
		out[off+int(e)] = 1
		off += int(m.Nvec[i])
	}
	return out, nil
}

func (m *MultiDiscrete) Unflatten(x []float64) (Value, error) {
	if len(x) != m.FlatDim() {
		return nil, fmt.Errorf("%w: flat length %d, want %d", ErrInvalidValue, len(x), m.FlatDim())
	}
	out := make([]int64, len(m.Nvec))
	off := 0
	for i, k := range m.Nvec {
		found := false
		for j := range int(k) {
			if x[off+j] != 0 {
				out[i] = int64(j)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: one-hot block %d has no set element", ErrInvalidValue, i)
		}
		off += int(k)
	}
	return out, nil
}

func (m *MultiDiscrete) Encode(values []Value) (*Column, error) {
	w := len(m.Nvec)
	ints := make([]int64, 0, len(values)*w)
	for i, v := range values {
		c, err := m.Canonicalize(v)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		ints = append(ints, c.([]int64)...)
	}
	return &Column{Kind: KindMultiDiscrete, Len: len(values), Width: w, Ints: ints}, nil
}

func (m *MultiDiscrete) Decode(c *Column) ([]Value, error) {
	w := len(m.Nvec)
	if err := checkLeafColumn(c, KindMultiDiscrete, w, false); err != nil {
		return nil, err
	}
	out := make([]Value, c.Len)
	for i := range out {
		out[i] = append([]int64(nil), c.Ints[i*w:(i+1)*w]...)
	}
	return out, nil
}

func (m *MultiDiscrete) Sample(r *rand.Rand) Value {
	x := make([]int64, len(m.Nvec))
	for i, k := range m.Nvec {
		x[i] = r.Int64N(k)
	}
	return x
}

func (m *MultiDiscrete) String() string { return fmt.Sprintf("MultiDiscrete(%v)", m.Nvec) }

func (m *MultiDiscrete) descriptor() descriptor {
	return descriptor{Type: KindMultiDiscrete.String(), Nvec: append([]int64(nil), m.Nvec...)}
}

func (m *MultiDiscrete) flatBounds() (low, high []float64) {
	n := m.FlatDim()
	low, high = make([]float64, n), make([]float64, n)
	for i := range high {
		high[i] = 1
	}
	return low, high
}

// MultiBinary is a binary vector of length N.
type MultiBinary struct {
	N int
}

// NewMultiBinary creates a MultiBinary space.
func NewMultiBinary(n int) *MultiBinary { return &MultiBinary{N: n} }

func (m *MultiBinary) Kind() Kind { return KindMultiBinary }

func (m *MultiBinary) Canonicalize(v Value) (Value, error) {
	var x []int8
	switch t := v.(type) {
	case []int8:
		x = append([]int8(nil), t...)
	case []bool:
		x = make([]int8, len(t))
		for i, b := range t {
			if b {
				x[i] = 1
			}
		}
	default:
		ints, ok := toInt64Slice(v)
		if !ok {
			return nil, invalid(m, v)
		}
		x = make([]int8, len(ints))
		for i, e := range ints {
			if e != 0 && e != 1 {
				return nil, invalid(m, v)
			}
			x[i] = int8(e)
		}
	}
	if len(x) != m.N {
		return nil, invalid(m, v)
	}
	for _, e := range x {
		if e != 0 && e != 1 {
			return nil, invalid(m, v)
		}
	}
	return x, nil
}

func (m *MultiBinary) FlatDim() int { return m.N }

func (m *MultiBinary) Flatten(v Value) ([]float64, error) {
	c, err := m.Canonicalize(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, m.N)
	for i, e := range c.([]int8) {
		out[i] = float64(e)
	}
	return out, nil
}

func (m *MultiBinary) Unflatten(x []float64) (Value, error) {
	if len(x) != m.N {
		return nil, fmt.Errorf("%w: flat length %d, want %d", ErrInvalidValue, len(x), m.N)
	}
	out := make([]int8, m.N)
	for i, f := range x {
		if f != 0 {
			out[i] = 1
		}
	}
	return out, nil
}

func (m *MultiBinary) Encode(values []Value) (*Column, error) {
	ints := make([]int64, 0, len(values)*m.N)
	for i, v := range values {
		c, err := m.Canonicalize(v)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		for _, e := range c.([]int8) {
			ints = append(ints, int64(e))
		}
	}
	return &Column{Kind: KindMultiBinary, Len: len(values), Width: m.N, Ints: ints}, nil
}

func (m *MultiBinary) Decode(c *Column) ([]Value, error) {
	if err := checkLeafColumn(c, KindMultiBinary, m.N, false); err != nil {
		return nil, err
	}
	out := make([]Value, c.Len)
	for i := range out {
		x := make([]int8, m.N)
		for j := range x {
			x[j] = int8(c.Ints[i*m.N+j])
		}
		out[i] = x
	}
	return out, nil
}

func (m *MultiBinary) Sample(r *rand.Rand) Value {
	x := make([]int8, m.N)
	for i := range x {
		x[i] = int8(r.IntN(2))
	}
	return x
}

func (m *MultiBinary) String() string { return fmt.Sprintf("MultiBinary(%d)", m.N) }

func (m *MultiBinary) descriptor() descriptor {
	return descriptor{Type: KindMultiBinary.String(), N: int64(m.N)}
}

func (m *MultiBinary) flatBounds() (low, high []float64) {
	low, high = make([]float64, m.N), make([]float64, m.N)
	for i := range high {
		high[i] = 1
	}
	return low, high
}

func toInt64Slice(v Value) ([]int64, bool) {
	switch t := v.(type) {
	case []int64:
		return append([]int64(nil), t...), true
	case []int:
		out := make([]int64, len(t))
		for i, e := range t {
			out[i] = int64(e)
		}
		return out, true
	case []int32:
		out := make([]int64, len(t))
		for i, e := range t {
			out[i] = int64(e)
		}
		return out, true
	default:
		return nil, false
	}
}
