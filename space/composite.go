package space

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
)

// Dict is a mapping of named sub-spaces. Keys are kept sorted; flattening
// and storage follow key order.
type Dict struct {
	Keys   []string
	Spaces map[string]Space
}

// NewDict creates a Dict space from named sub-spaces.
func NewDict(spaces map[string]Space) *Dict {
	d := &Dict{Spaces: make(map[string]Space, len(spaces))}
	for k, s := range spaces {
		d.Keys = append(d.Keys, k)
		d.Spaces[k] = s
	}
	slices.Sort(d.Keys)
	return d
}

func (d *Dict) Kind() Kind { return KindDict }

func (d *Dict) Canonicalize(v Value) (Value, error) {
	m, ok := v.(map[string]Value)
	if !ok || len(m) != len(d.Keys) {
		return nil, invalid(d, v)
	}
	out := make(map[string]Value, len(m))
	for _, k := range d.Keys {
		sub, ok := m[k]
		if !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrInvalidValue, k)
		}
		c, err := d.Spaces[k].Canonicalize(sub)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = c
	}
	return out, nil
}

func (d *Dict) FlatDim() int {
	n := 0
	for _, k := range d.Keys {
		n += d.Spaces[k].FlatDim()
	}
	return n
}

func (d *Dict) Flatten(v Value) ([]float64, error) {
	c, err := d.Canonicalize(v)
	if err != nil {
		return nil, err
	}
	m := c.(map[string]Value)
	out := make([]float64, 0, d.FlatDim())
	for _, k := range d.Keys {
		f, err := d.Spaces[k].Flatten(m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, f...)
	}
	return out, nil
}

func (d *Dict) Unflatten(x []float64) (Value, error) {
	if len(x) != d.FlatDim() {
		return nil, fmt.Errorf("%w: flat length %d, want %d", ErrInvalidValue, len(x), d.FlatDim())
	}
	out := make(map[string]Value, len(d.Keys))
	off := 0
	for _, k := range d.Keys {
		s := d.Spaces[k]
		v, err := s.Unflatten(x[off : off+s.FlatDim()])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = v
		off += s.FlatDim()
	}
	return out, nil
}

func (d *Dict) Encode(values []Value) (*Column, error) {
	per := make(map[string][]Value, len(d.Keys))
	for i, v := range values {
		m, ok := v.(map[string]Value)
		if !ok || len(m) != len(d.Keys) {
			return nil, fmt.Errorf("step %d: %w", i, invalid(d, v))
		}
		for _, k := range d.Keys {
			sub, ok := m[k]
			if !ok {
				return nil, fmt.Errorf("step %d: %w: missing key %q", i, ErrInvalidValue, k)
			}
			per[k] = append(per[k], sub)
		}
	}
	col := &Column{Kind: KindDict, Len: len(values), Fields: make(map[string]*Column, len(d.Keys))}
	for _, k := range d.Keys {
		sub, err := d.Spaces[k].Encode(per[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		col.Fields[k] = sub
	}
	return col, nil
}

func (d *Dict) Decode(c *Column) ([]Value, error) {
	if c == nil || c.Kind != KindDict || len(c.Fields) != len(d.Keys) {
		return nil, fmt.Errorf("%w: expected dict with %d fields", ErrInvalidColumn, len(d.Keys))
	}
	out := make([]Value, c.Len)
	for i := range out {
		out[i] = make(map[string]Value, len(d.Keys))
	}
	for _, k := range d.Keys {
		vals, err := d.Spaces[k].Decode(c.Fields[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		if len(vals) != c.Len {
			return nil, fmt.Errorf("%w: key %q has %d steps, want %d", ErrInvalidColumn, k, len(vals), c.Len)
		}
		for i, v := range vals {
			out[i].(map[string]Value)[k] = v
		}
	}
	return out, nil
}

func (d *Dict) Sample(r *rand.Rand) Value {
	out := make(map[string]Value, len(d.Keys))
	for _, k := range d.Keys {
		out[k] = d.Spaces[k].Sample(r)
	}
	return out
}

func (d *Dict) String() string {
	parts := make([]string, len(d.Keys))
	for i, k := range d.Keys {
		parts[i] = fmt.Sprintf("%q: %s", k, d.Spaces[k])
	}
	return "Dict(" + strings.Join(parts, ", ") + ")"
}

func (d *Dict) descriptor() descriptor {
	desc := descriptor{Type: KindDict.String(), Keys: append([]string(nil), d.Keys...)}
	for _, k := range d.Keys {
		desc.Spaces = append(desc.Spaces, d.Spaces[k].descriptor())
	}
	return desc
}

func (d *Dict) flatBounds() (low, high []float64) {
	for _, k := range d.Keys {
		l, h := d.Spaces[k].flatBounds()
		low = append(low, l...)
		high = append(high, h...)
	}
	return low, high
}

// Tuple is an ordered product of sub-spaces.
type Tuple struct {
	Spaces []Space
}

// NewTuple creates a Tuple space.
func NewTuple(spaces ...Space) *Tuple {
	return &Tuple{Spaces: append([]Space(nil), spaces...)}
}

func (t *Tuple) Kind() Kind { return KindTuple }

func (t *Tuple) Canonicalize(v Value) (Value, error) {
	xs, ok := v.([]Value)
	if !ok || len(xs) != len(t.Spaces) {
		return nil, invalid(t, v)
	}
	out := make([]Value, len(xs))
	for i, s := range t.Spaces {
		c, err := s.Canonicalize(xs[i])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func (t *Tuple) FlatDim() int {
	n := 0
	for _, s := range t.Spaces {
		n += s.FlatDim()
	}
	return n
}

func (t *Tuple) Flatten(v Value) ([]float64, error) {
	c, err := t.Canonicalize(v)
	if err != nil {
		return nil, err
	}
	xs := c.([]Value)
	out := make([]float64, 0, t.FlatDim())
	for i, s := range t.Spaces {
		f, err := s.Flatten(xs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, f...)
	}
	return out, nil
}

func (t *Tuple) Unflatten(x []float64) (Value, error) {
	if len(x) != t.FlatDim() {
		return nil, fmt.Errorf("%w: flat length %d, want %d", ErrInvalidValue, len(x), t.FlatDim())
	}
	out := make([]Value, len(t.Spaces))
	off := 0
	for i, s := range t.Spaces {
		v, err := s.Unflatten(x[off : off+s.FlatDim()])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = v
		off += s.FlatDim()
	}
	return out, nil
}

func (t *Tuple) Encode(values []Value) (*Column, error) {
	per := make([][]Value, len(t.Spaces))
	for i, v := range values {
		xs, ok := v.([]Value)
		if !ok || len(xs) != len(t.Spaces) {
			return nil, fmt.Errorf("step %d: %w", i, invalid(t, v))
		}
		for j := range t.Spaces {
			per[j] = append(per[j], xs[j])
		}
	}
	col := &Column{Kind: KindTuple, Len: len(values), Items: make([]*Column, len(t.Spaces))}
	for j, s := range t.Spaces {
		sub, err := s.Encode(per[j])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", j, err)
		}
		col.Items[j] = sub
	}
	return col, nil
}

func (t *Tuple) Decode(c *Column) ([]Value, error) {
	if c == nil || c.Kind != KindTuple || len(c.Items) != len(t.Spaces) {
		return nil, fmt.Errorf("%w: expected tuple with %d items", ErrInvalidColumn, len(t.Spaces))
	}
	out := make([]Value, c.Len)
	for i := range out {
		out[i] = make([]Value, len(t.Spaces))
	}
	for j, s := range t.Spaces {
		vals, err := s.Decode(c.Items[j])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", j, err)
		}
		if len(vals) != c.Len {
			return nil, fmt.Errorf("%w: item %d has %d steps, want %d", ErrInvalidColumn, j, len(vals), c.Len)
		}
		for i, v := range vals {
			out[i].([]Value)[j] = v
		}
	}
	return out, nil
}

func (t *Tuple) Sample(r *rand.Rand) Value {
	out := make([]Value, len(t.Spaces))
	for i, s := range t.Spaces {
		out[i] = s.Sample(r)
	}
	return out
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.Spaces))
	for i, s := range t.Spaces {
		parts[i] = s.String()
	}
	return "Tuple(" + strings.Join(parts, ", ") + ")"
}

func (t *Tuple) descriptor() descriptor {
	desc := descriptor{Type: KindTuple.String()}
	for _, s := range t.Spaces {
		desc.Spaces = append(desc.Spaces, s.descriptor())
	}
	return desc
}

func (t *Tuple) flatBounds() (low, high []float64) {
	for _, s := range t.Spaces {
		l, h := s.flatBounds()
		low = append(low, l...)
		high = append(high, h...)
	}
	return low, high
}
