package space

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpaces() map[string]Space {
	return map[string]Space{
		"discrete":       NewDiscrete(4),
		"discrete_start": NewDiscreteStart(3, -1),
		"box":            NewBox(-1, 1, 2, 3),
		"box_unbounded":  NewBox(math.Inf(-1), math.Inf(1), 4),
		"box_scalar":     NewBox(0, 10),
		"multi_discrete": NewMultiDiscrete(2, 5, 3),
		"multi_binary":   NewMultiBinary(6),
		"tuple":          NewTuple(NewDiscrete(2), NewBox(0, 1, 2)),
		"dict": NewDict(map[string]Space{
			"velocity": NewBox(-5, 5, 2),
			"gear":     NewDiscrete(3),
			"nested":   NewTuple(NewMultiBinary(2), NewDiscrete(5)),
		}),
	}
}

func TestSpaces_FlattenRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for name, s := range testSpaces() {
		t.Run(name, func(t *testing.T) {
			for range 20 {
				v := s.Sample(r)
				require.True(t, Contains(s, v), "sample must be contained")

				flat, err := s.Flatten(v)
				require.NoError(t, err)
				assert.Len(t, flat, s.FlatDim())
				assert.True(t, Contains(FlattenSpace(s), flat), "flattened value must lie in the flattened space")

				back, err := s.Unflatten(flat)
				require.NoError(t, err)
				assert.Equal(t, v, back)
			}
		})
	}
}

func TestSpaces_ColumnRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for name, s := range testSpaces() {
		t.Run(name, func(t *testing.T) {
			values := make([]Value, 7)
			for i := range values {
				values[i] = s.Sample(r)
			}
			col, err := s.Encode(values)
			require.NoError(t, err)
			assert.Equal(t, 7, col.Len)

			decoded, err := s.Decode(col)
			require.NoError(t, err)
			assert.Equal(t, values, decoded)
		})
	}
}

func TestSpaces_EmptyColumn(t *testing.T) {
	for name, s := range testSpaces() {
		col, err := s.Encode(nil)
		require.NoError(t, err, name)
		decoded, err := s.Decode(col)
		require.NoError(t, err, name)
		assert.Empty(t, decoded, name)
	}
}

func TestSpaces_DescriptorRoundTrip(t *testing.T) {
	for name, s := range testSpaces() {
		t.Run(name, func(t *testing.T) {
			b, err := Marshal(s)
			require.NoError(t, err)

			restored, err := Unmarshal(b)
			require.NoError(t, err)
			assert.Equal(t, s.Kind(), restored.Kind())
			assert.True(t, Equal(s, restored))
			assert.Equal(t, s.String(), restored.String())
		})
	}
}

func TestSpaces_Equal(t *testing.T) {
	assert.True(t, Equal(NewDiscrete(3), NewDiscrete(3)))
	assert.False(t, Equal(NewDiscrete(3), NewDiscrete(4)))
	assert.False(t, Equal(NewBox(0, 1, 2), NewBox(0, 2, 2)))
	assert.False(t, Equal(NewDiscrete(3), nil))
	assert.True(t, Equal(nil, nil))
}

func TestCanonicalize(t *testing.T) {
	v, err := NewDiscrete(5).Canonicalize(3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = NewBox(-1, 1, 2).Canonicalize([]float32{0.5, -0.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.5}, v)

	v, err = NewMultiBinary(3).Canonicalize([]bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, []int8{1, 0, 1}, v)

	v, err = NewMultiDiscrete(3, 3).Canonicalize([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 0}, v)
}

func TestContains_Rejects(t *testing.T) {
	tests := []struct {
		name string
		s    Space
		v    Value
	}{
		{"discrete out of range", NewDiscrete(3), int64(3)},
		{"discrete wrong type", NewDiscrete(3), 1.0},
		{"box wrong length", NewBox(0, 1, 3), []float64{0.5}},
		{"box out of bounds", NewBox(0, 1, 2), []float64{0.5, 1.5}},
		{"box NaN", NewBox(math.Inf(-1), math.Inf(1), 1), []float64{math.NaN()}},
		{"multi_discrete out of range", NewMultiDiscrete(2, 2), []int64{0, 2}},
		{"multi_binary non binary", NewMultiBinary(2), []int64{0, 2}},
		{"dict missing key", NewDict(map[string]Space{"a": NewDiscrete(2)}), map[string]Value{"b": int64(0)}},
		{"tuple arity", NewTuple(NewDiscrete(2)), []Value{int64(0), int64(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Contains(tt.s, tt.v))
			_, err := tt.s.Canonicalize(tt.v)
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}

func TestDiscrete_OneHot(t *testing.T) {
	d := NewDiscreteStart(4, 10)
	flat, err := d.Flatten(int64(12))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 0}, flat)

	_, err = d.Unflatten([]float64{0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestDecode_RejectsMismatchedColumn(t *testing.T) {
	col, err := NewBox(0, 1, 2).Encode([]Value{[]float64{0, 1}})
	require.NoError(t, err)

	_, err = NewBox(0, 1, 3).Decode(col)
	assert.ErrorIs(t, err, ErrInvalidColumn)

	_, err = NewDiscrete(2).Decode(col)
	assert.ErrorIs(t, err, ErrInvalidColumn)
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	b, err := Marshal(NewDiscrete(2))
	require.NoError(t, err)
	s, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, KindDiscrete, s.Kind())
}

func TestFlattenSpace(t *testing.T) {
	s := NewTuple(NewDiscrete(2), NewBox(-3, 3, 1))
	box := FlattenSpace(s)
	assert.Equal(t, []int{3}, box.Shape)
	assert.Equal(t, []float64{0, 0, -3}, box.Low)
	assert.Equal(t, []float64{1, 1, 3}, box.High)
}
