package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string    `cbor:"name" json:"name"`
	Rewards []float64 `cbor:"rewards" json:"rewards"`
	Flags   []bool    `cbor:"flags" json:"flags"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"cbor", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("gob")
	assert.False(t, ok)
}

func TestCBOR_ExactFloatsAndInf(t *testing.T) {
	in := sample{
		Name:    "cartpole",
		Rewards: []float64{0.1, 1.0 / 3.0, math.Inf(1), math.Inf(-1), math.Copysign(0, -1), math.SmallestNonzeroFloat64},
		Flags:   []bool{true, false},
	}

	b, err := CBOR{}.Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, CBOR{}.Unmarshal(b, &out))
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Flags, out.Flags)
	require.Len(t, out.Rewards, len(in.Rewards))
	for i := range in.Rewards {
		assert.Equal(t, math.Float64bits(in.Rewards[i]), math.Float64bits(out.Rewards[i]), "reward %d", i)
	}
}

func TestCBOR_Deterministic(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	first := MustMarshal(CBOR{}, m)
	for range 10 {
		assert.Equal(t, first, MustMarshal(CBOR{}, m))
	}
}

func TestGoJSON_RoundTrip(t *testing.T) {
	in := sample{Name: "pen", Rewards: []float64{1.5}, Flags: []bool{true}}
	b, err := GoJSON{}.Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, GoJSON{}.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	_, err = GoJSON{}.Marshal(math.Inf(1))
	assert.Error(t, err)
}
