package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderStopReturnsBufferAndDuration(t *testing.T) {
	r := NewRecorder(time.Minute)

	base := time.Now()
	clock := base
	r.now = func() time.Time { return clock }

	require.NoError(t, r.Start())
	r.Write([]byte("chunk-1"))
	r.Write([]byte("chunk-2"))

	clock = base.Add(2500 * time.Millisecond)
	rec, err := r.Stop()
	require.NoError(t, err)

	assert.Equal(t, []byte("chunk-1chunk-2"), rec.Data)
	assert.InDelta(t, 2.5, rec.Duration, 0.001)
	assert.False(t, r.Recording())
}

func TestRecorderCancelDiscards(t *testing.T) {
	r := NewRecorder(time.Minute)

	require.NoError(t, r.Start())
	r.Write([]byte("secret"))
	r.Cancel()

	assert.False(t, r.Recording())
	_, err := r.Stop()
	assert.Error(t, err, "cancel leaves nothing to stop")
}

func TestRecorderDoubleStartRejected(t *testing.T) {
	r := NewRecorder(time.Minute)

	require.NoError(t, r.Start())
	assert.Error(t, r.Start())
	r.Cancel()
	assert.NoError(t, r.Start())
	r.Cancel()
}

func TestRecorderAutoStopsAtLimit(t *testing.T) {
	r := NewRecorder(30 * time.Millisecond)

	got := make(chan *Recording, 1)
	r.OnAutoStop = func(rec *Recording) { got <- rec }

	require.NoError(t, r.Start())
	r.Write([]byte("voice"))

	select {
	case rec := <-got:
		assert.Equal(t, []byte("voice"), rec.Data)
		assert.LessOrEqual(t, rec.Duration, (30 * time.Millisecond).Seconds()+0.001,
			"reported duration clamps at the limit")
	case <-time.After(time.Second):
		t.Fatal("recording did not auto-stop at the duration limit")
	}

	assert.False(t, r.Recording())
	r.Write([]byte("late"))
	_, err := r.Stop()
	assert.Error(t, err, "chunks after auto-stop are dropped")
}
