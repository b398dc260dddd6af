package stillness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_EntersStillImmediately(t *testing.T) {
	var tr Tracker
	t0 := time.Unix(100, 0)

	tr.Update(0.001, t0)
	require.NotNil(t, tr.StartTime())
	assert.Equal(t, t0, *tr.StartTime())
	assert.Equal(t, time.Duration(0), tr.Duration(t0))

	// 持续静止不刷新起点
	tr.Update(0.0, t0.Add(500*time.Millisecond))
	assert.Equal(t, t0, *tr.StartTime())
	assert.Equal(t, 1500*time.Millisecond, tr.Duration(t0.Add(1500*time.Millisecond)))
}

func TestTracker_LeavesStillOnMovement(t *testing.T) {
	var tr Tracker
	t0 := time.Unix(100, 0)

	tr.Update(0, t0)
	tr.Update(Threshold, t0.Add(time.Second))

	assert.Nil(t, tr.StartTime())
	assert.Equal(t, time.Duration(0), tr.Duration(t0.Add(2*time.Second)))

	tr.Update(0, t0.Add(3*time.Second))
	assert.Equal(t, t0.Add(3*time.Second), *tr.StartTime())
}

func TestTracker_Reset(t *testing.T) {
	var tr Tracker
	tr.Update(0, time.Unix(1, 0))
	tr.Reset()

	assert.Nil(t, tr.StartTime())
}

func TestIsMoving(t *testing.T) {
	assert.False(t, IsMoving(0.001))
	assert.False(t, IsMoving(Threshold))
	assert.True(t, IsMoving(0.02))
}
