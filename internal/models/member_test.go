package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestTimeDuration(t *testing.T) {
	closed := Time{PunchIn: 100, PunchOut: floatPtr(160)}
	assert.Equal(t, 60*time.Second, closed.Duration())
	assert.False(t, closed.Open())

	// Open intervals count up to now.
	open := Time{PunchIn: float64(time.Now().Add(-time.Minute).Unix())}
	assert.True(t, open.Open())
	assert.InDelta(t, 60, open.Duration().Seconds(), 5)

	// A punch-out behind the punch-in clamps to zero.
	inverted := Time{PunchIn: 160, PunchOut: floatPtr(100)}
	assert.Equal(t, time.Duration(0), inverted.Duration())
}

func TestMemberOpenTime(t *testing.T) {
	m := Member{
		Times: []Time{
			{ID: 1, PunchIn: 100, PunchOut: floatPtr(160)},
			{ID: 2, PunchIn: 200},
		},
	}
	open := m.OpenTime()
	assert.NotNil(t, open)
	assert.Equal(t, uint(2), open.ID)

	closedOut := Member{
		Times: []Time{{ID: 1, PunchIn: 100, PunchOut: floatPtr(160)}},
	}
	assert.Nil(t, closedOut.OpenTime())

	empty := Member{}
	assert.Nil(t, empty.OpenTime())
}

func TestMemberTimesSince(t *testing.T) {
	now := time.Now()
	old := float64(now.AddDate(0, 0, -10).Unix())
	recent := float64(now.Add(-time.Hour).Unix())

	m := Member{
		Times: []Time{
			{ID: 1, PunchIn: old, PunchOut: floatPtr(old + 3600)},
			{ID: 2, PunchIn: recent, PunchOut: floatPtr(recent + 600)},
		},
	}

	window := m.TimesSince(7)
	assert.Len(t, window, 1)
	assert.Equal(t, uint(2), window[0].ID)

	assert.Len(t, m.TimesSince(14), 2)
}

func TestMemberTotalOnDuty(t *testing.T) {
	now := time.Now()
	in1 := float64(now.Add(-2 * time.Hour).Unix())
	in2 := float64(now.Add(-30 * time.Minute).Unix())

	m := Member{
		Times: []Time{
			{PunchIn: in1, PunchOut: floatPtr(in1 + 3600)},
			{PunchIn: in2}, // open, counts up to now
		},
	}

	total := m.TotalOnDuty(7)
	assert.InDelta(t, (90 * time.Minute).Seconds(), total.Seconds(), 5)
}
