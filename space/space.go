package space

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	// ErrInvalidValue is returned when a value is not a member of a space.
	ErrInvalidValue = errors.New("value not contained in space")

	// ErrInvalidColumn is returned when a stored column does not match the space.
	ErrInvalidColumn = errors.New("column does not match space")

	// ErrInvalidDescriptor is returned when a space descriptor cannot be decoded.
	ErrInvalidDescriptor = errors.New("invalid space descriptor")

	// ErrInvalidSpace is returned by constructors given impossible parameters.
	ErrInvalidSpace = errors.New("invalid space definition")
)

// Kind tags a space variant.
type Kind uint8

const (
	KindDiscrete Kind = iota + 1
	KindBox
	KindMultiDiscrete
	KindMultiBinary
	KindDict
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindDiscrete:
		return "discrete"
	case KindBox:
		return "box"
	case KindMultiDiscrete:
		return "multi_discrete"
	case KindMultiBinary:
		return "multi_binary"
	case KindDict:
		return "dict"
	case KindTuple:
		return "tuple"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one sample of a space. Canonical Go representations:
//
//	Discrete      int64
//	Box           []float64 (row-major, len = product of Shape)
//	MultiDiscrete []int64
//	MultiBinary   []int8
//	Dict          map[string]Value
//	Tuple         []Value
type Value = any

// Space is an observation or action space with its codec.
type Space interface {
	Kind() Kind

	// Canonicalize converts v into the canonical representation, or fails
	// with ErrInvalidValue if v is not a member of the space.
	Canonicalize(v Value) (Value, error)

	// FlatDim is the length of a flattened sample.
	FlatDim() int

	// Flatten encodes a member as a flat float64 vector.
	Flatten(v Value) ([]float64, error)

	// Unflatten is the inverse of Flatten.
	Unflatten(x []float64) (Value, error)

	// Encode stores a per-step sequence of members as a column.
	Encode(values []Value) (*Column, error)

	// Decode is the inverse of Encode.
	Decode(c *Column) ([]Value, error)

	// Sample draws a random member.
	Sample(r *rand.Rand) Value

	String() string

	descriptor() descriptor
	flatBounds() (low, high []float64)
}

// Column is the columnar, per-step storage form of a sequence of values.
// Leaves hold Ints or Floats with Width elements per step; composite
// spaces hold child columns.
type Column struct {
	Kind   Kind               `cbor:"k"`
	Len    int                `cbor:"n"`
	Width  int                `cbor:"w,omitempty"`
	Ints   []int64            `cbor:"i,omitempty"`
	Floats []float64          `cbor:"f,omitempty"`
	Fields map[string]*Column `cbor:"m,omitempty"`
	Items  []*Column          `cbor:"t,omitempty"`
}

// Contains reports whether v is a member of s.
func Contains(s Space, v Value) bool {
	_, err := s.Canonicalize(v)
	return err == nil
}

// Equal reports whether two spaces have identical definitions.
func Equal(a, b Space) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	da, err := Marshal(a)
	if err != nil {
		return false
	}
	db, err := Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(da, db)
}

// FlattenSpace returns the Box that flattened members of s live in.
func FlattenSpace(s Space) *Box {
	low, high := s.flatBounds()
	return &Box{Low: low, High: high, Shape: []int{len(low)}}
}

func checkLeafColumn(c *Column, kind Kind, width int, floats bool) error {
	if c == nil {
		return fmt.Errorf("%w: missing column", ErrInvalidColumn)
	}
	if c.Kind != kind {
		return fmt.Errorf("%w: kind %s, want %s", ErrInvalidColumn, c.Kind, kind)
	}
	if c.Len < 0 || c.Width != width {
		return fmt.Errorf("%w: width %d, want %d", ErrInvalidColumn, c.Width, width)
	}
	n := len(c.Ints)
	if floats {
		n = len(c.Floats)
	}
	if n != c.Len*width {
		return fmt.Errorf("%w: %d elements for %d steps of width %d", ErrInvalidColumn, n, c.Len, width)
	}
	return nil
}

func invalid(s Space, v Value) error {
	return fmt.Errorf("%w: %T %v not in %s", ErrInvalidValue, v, v, s)
}
