package space

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Box is a (possibly unbounded) box in R^n with a fixed shape.
// Low and High are stored flattened in row-major order.
type Box struct {
	Low   []float64
	High  []float64
	Shape []int
}

// NewBox creates a Box whose every element is bounded by [low, high].
// An empty shape denotes a scalar.
func NewBox(low, high float64, shape ...int) *Box {
	n := shapeSize(shape)
	b := &Box{Low: make([]float64, n), High: make([]float64, n), Shape: normShape(shape)}
	for i := range n {
		b.Low[i] = low
		b.High[i] = high
	}
	return b
}

// NewBoxBounds creates a Box with per-element bounds.
func NewBoxBounds(low, high []float64, shape ...int) (*Box, error) {
	n := shapeSize(shape)
	if len(low) != n || len(high) != n {
		return nil, fmt.Errorf("%w: bounds length %d/%d for shape %v", ErrInvalidSpace, len(low), len(high), shape)
	}
	for i := range low {
		if low[i] > high[i] {
			return nil, fmt.Errorf("%w: low[%d]=%v > high[%d]=%v", ErrInvalidSpace, i, low[i], i, high[i])
		}
	}
	return &Box{
		Low:   append([]float64(nil), low...),
		High:  append([]float64(nil), high...),
		Shape: normShape(shape),
	}, nil
}

func (b *Box) Kind() Kind { return KindBox }

func (b *Box) size() int { return len(b.Low) }

func (b *Box) Canonicalize(v Value) (Value, error) {
	var x []float64
	switch t := v.(type) {
	case []float64:
		x = append([]float64(nil), t...)
	case []float32:
		x = make([]float64, len(t))
		for i, f := range t {
			x[i] = float64(f)
		}
	case float64:
		x = []float64{t}
	case float32:
		x = []float64{float64(t)}
	default:
		return nil, invalid(b, v)
	}
	if len(x) != b.size() {
		return nil, invalid(b, v)
	}
	for i, f := range x {
		// NaN fails both comparisons.
		if !(f >= b.Low[i] && f <= b.High[i]) {
			return nil, invalid(b, v)
		}
	}
	return x, nil
}

func (b *Box) FlatDim() int { return b.size() }

func (b *Box) Flatten(v Value) ([]float64, error) {
	c, err := b.Canonicalize(v)
	if err != nil {
		return nil, err
	}
	return c.([]float64), nil
}

func (b *Box) Unflatten(x []float64) (Value, error) {
	if len(x) != b.size() {
		return nil, fmt.Errorf("%w: flat length %d, want %d", ErrInvalidValue, len(x), b.size())
	}
	return append([]float64(nil), x...), nil
}

func (b *Box) Encode(values []Value) (*Column, error) {
	w := b.size()
	floats := make([]float64, 0, len(values)*w)
	for i, v := range values {
		c, err := b.Canonicalize(v)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		floats = append(floats, c.([]float64)...)
	}
	return &Column{Kind: KindBox, Len: len(values), Width: w, Floats: floats}, nil
}

func (b *Box) Decode(c *Column) ([]Value, error) {
	w := b.size()
	if err := checkLeafColumn(c, KindBox, w, true); err != nil {
		return nil, err
	}
	out := make([]Value, c.Len)
	for i := range out {
		out[i] = append([]float64(nil), c.Floats[i*w:(i+1)*w]...)
	}
	return out, nil
}

func (b *Box) Sample(r *rand.Rand) Value {
	x := make([]float64, b.size())
	for i := range x {
		lo, hi := b.Low[i], b.High[i]
		loInf, hiInf := math.IsInf(lo, -1), math.IsInf(hi, 1)
		switch {
		case loInf && hiInf:
			x[i] = r.NormFloat64()
		case loInf:
			x[i] = hi - r.ExpFloat64()
		case hiInf:
			x[i] = lo + r.ExpFloat64()
		default:
			x[i] = lo + r.Float64()*(hi-lo)
		}
	}
	return x
}

func (b *Box) String() string {
	dims := make([]string, len(b.Shape))
	for i, d := range b.Shape {
		dims[i] = fmt.Sprint(d)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range b.Low {
		lo = math.Min(lo, b.Low[i])
		hi = math.Max(hi, b.High[i])
	}
	return fmt.Sprintf("Box(%v, %v, (%s), float64)", lo, hi, strings.Join(dims, ","))
}

func (b *Box) descriptor() descriptor {
	return descriptor{
		Type:  KindBox.String(),
		Low:   append([]float64(nil), b.Low...),
		High:  append([]float64(nil), b.High...),
		Shape: append([]int(nil), b.Shape...),
	}
}

func (b *Box) flatBounds() (low, high []float64) {
	return append([]float64(nil), b.Low...), append([]float64(nil), b.High...)
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func normShape(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	return append([]int(nil), shape...)
}
