package handoff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	buf := NewCircularBuffer[int](3)

	for i := 1; i <= 3; i++ {
		assert.False(t, buf.Push(i))
	}
	assert.True(t, buf.Push(4))

	assert.Equal(t, []int{2, 3, 4}, buf.Items())
	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, 3, buf.Cap())
}

func TestCircularBuffer_RecentN(t *testing.T) {
	buf := NewCircularBuffer[string](4)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		buf.Push(s)
	}

	assert.Equal(t, []string{"d", "e"}, buf.RecentN(2))
	assert.Equal(t, []string{"b", "c", "d", "e"}, buf.RecentN(10))
	assert.Empty(t, buf.RecentN(0))
}

func TestCircularBuffer_ClearAndMinimumCapacity(t *testing.T) {
	buf := NewCircularBuffer[int](0)
	assert.Equal(t, 1, buf.Cap())

	buf.Push(1)
	buf.Push(2)
	assert.Equal(t, []int{2}, buf.Items())

	buf.Clear()
	assert.Zero(t, buf.Len())
	assert.Empty(t, buf.Items())
}

func TestCircularBuffer_MarshalJSON(t *testing.T) {
	buf := NewCircularBuffer[Record](2)
	buf.Push(Record{To: "voice agent", Outcome: OutcomeActivated})

	data, err := json.Marshal(buf)
	require.NoError(t, err)

	var decoded []Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "voice agent", decoded[0].To)
}
