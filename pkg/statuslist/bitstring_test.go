package statuslist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitstring_SetGetIndependence(t *testing.T) {
	bs, err := New(64)
	require.NoError(t, err)

	require.NoError(t, bs.Set(3, true))
	require.NoError(t, bs.Set(40, true))

	for i := 0; i < 64; i++ {
		v, err := bs.Get(i)
		require.NoError(t, err)
		want := i == 3 || i == 40
		assert.Equal(t, want, v, "bit %d", i)
	}
}

func TestBitstring_MSBFirstBitOrdering(t *testing.T) {
	bs, err := New(8)
	require.NoError(t, err)

	require.NoError(t, bs.Set(0, true))
	assert.Equal(t, byte(0b10000000), bs.bits[0])

	require.NoError(t, bs.Set(7, true))
	assert.Equal(t, byte(0b10000001), bs.bits[0])
}

func TestBitstring_OutOfRangeRejected(t *testing.T) {
	bs, err := New(8)
	require.NoError(t, err)

	_, err = bs.Get(8)
	assert.Error(t, err)

	err = bs.Set(-1, true)
	assert.Error(t, err)
}

func TestNew_RejectsNonMultipleOf8(t *testing.T) {
	_, err := New(5)
	assert.Error(t, err)
}
