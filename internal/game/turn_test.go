// internal/game/turn_test.go
package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnSchedulerStartsWithHostAndAlternates(t *testing.T) {
	ts := NewTurnScheduler(60, 10)
	now := time.Unix(1_700_000_000, 0)

	assert.False(t, ts.Holds(RoleHost), "no holder before start")
	require.Equal(t, RoleHost, ts.Start(now))
	assert.True(t, ts.Holds(RoleHost))
	assert.Equal(t, 60, ts.Seconds)

	next := now.Add(5 * time.Second)
	assert.Equal(t, RoleGuest, ts.Advance(next))
	assert.Equal(t, next, ts.StartedAt)
	assert.Equal(t, RoleHost, ts.Advance(next.Add(time.Second)))

	snap := ts.Snapshot()
	assert.Equal(t, RoleHost, snap.Holder)
	assert.Equal(t, next.Add(time.Second).UnixMilli(), snap.StartedAt)
}

func TestTurnSchedulerModifiers(t *testing.T) {
	ts := NewTurnScheduler(60, 10)
	now := time.Unix(1_700_000_000, 0)
	ts.Start(now)

	// current holder gets the extension immediately
	ts.Extend(RoleHost, ExtraTimeSeconds)
	assert.Equal(t, 90, ts.Seconds)

	// the opponent's next turn is cut and capped
	ts.Extend(RoleGuest, -CutTimeSeconds)
	ts.CapNext(RoleGuest, 1)
	assert.Equal(t, TurnModifier{DeltaSeconds: -10, GuessCap: 1}, ts.Pending(RoleGuest))

	ts.Advance(now)
	assert.Equal(t, 50, ts.Seconds)
	assert.Equal(t, 1, ts.GuessCap)
	assert.Equal(t, TurnModifier{}, ts.Pending(RoleGuest))

	// modifiers are consumed by one turn only
	ts.Advance(now)
	ts.Advance(now)
	assert.Equal(t, RoleGuest, ts.Holder)
	assert.Equal(t, 60, ts.Seconds)
	assert.Zero(t, ts.GuessCap)
}

func TestTurnSchedulerFloor(t *testing.T) {
	ts := NewTurnScheduler(15, 10)
	ts.Start(time.Now())
	ts.Extend(RoleGuest, -CutTimeSeconds)
	ts.Advance(time.Now())
	assert.Equal(t, 10, ts.Seconds)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("guest")
	require.NoError(t, err)
	assert.Equal(t, RoleHost, r.Opponent())

	_, err = ParseRole("spectator")
	assert.ErrorIs(t, err, ErrUnknownRole)
}
