// internal/historian/historian_test.go
package historian

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codebreak/internal/cache"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu    sync.Mutex
	items []*models.MatchRecord
	errs  []error
}

func (q *fakeQueue) push(rec *models.MatchRecord, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, rec)
	q.errs = append(q.errs, err)
}

func (q *fakeQueue) Pop(ctx context.Context, timeout time.Duration) (*models.MatchRecord, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		rec, err := q.items[0], q.errs[0]
		q.items, q.errs = q.items[1:], q.errs[1:]
		q.mu.Unlock()
		return rec, err
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

type fakeSink struct {
	mu      sync.Mutex
	batches [][]models.MatchRecord
	fail    bool
	calls   int
}

// SaveMatchRecords stores recs atomically; a batch holding an invalid
// record is refused whole.
func (s *fakeSink) SaveMatchRecords(_ context.Context, recs []models.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return errors.New("db down")
	}
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	s.batches = append(s.batches, recs)
	return nil
}

func (s *fakeSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func record(roomID string) *models.MatchRecord {
	return &models.MatchRecord{ID: uuid.New(), RoomID: roomID, Kind: "duel", Rule: "unique"}
}

func TestFlushOnBatchSize(t *testing.T) {
	q := &fakeQueue{}
	sink := &fakeSink{}
	for i := 0; i < 4; i++ {
		q.push(record("r"), nil)
	}

	svc := NewService(q, sink, quietLogger(), 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.total() == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, b := range sink.batches {
		assert.Len(t, b, 2)
	}
}

func TestFlushOnTicker(t *testing.T) {
	q := &fakeQueue{}
	sink := &fakeSink{}
	q.push(record("solo"), nil)

	svc := NewService(q, sink, quietLogger(), 100, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBadRecordsAreSkipped(t *testing.T) {
	q := &fakeQueue{}
	sink := &fakeSink{}
	q.push(nil, cache.ErrBadRecord)
	q.push(nil, errors.New("connection reset"))
	q.push(record("ok"), nil)

	svc := NewService(q, sink, quietLogger(), 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	assert.Equal(t, "ok", sink.batches[0][0].RoomID)
	sink.mu.Unlock()
}

func TestFailedFlushIsRetried(t *testing.T) {
	sink := &fakeSink{fail: true}
	svc := NewService(&fakeQueue{}, sink, quietLogger(), 10, time.Hour)

	svc.add(context.Background(), *record("a"))
	svc.Flush(context.Background())
	assert.Equal(t, 1, svc.Pending())
	assert.Zero(t, sink.total())

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()
	svc.Flush(context.Background())
	assert.Zero(t, svc.Pending())
	assert.Equal(t, 1, sink.total())
}

func TestShutdownFlushesRemainder(t *testing.T) {
	q := &fakeQueue{}
	sink := &fakeSink{}
	q.push(record("late"), nil)

	svc := NewService(q, sink, quietLogger(), 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.Pending() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, sink.total())
}

func TestRejectedRecordIsDropped(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(&fakeQueue{}, sink, quietLogger(), 10, time.Hour)

	bad := record("same-player-twice")
	bad.Participants = []models.MatchParticipant{
		{PlayerID: "p1", Role: "host"},
		{PlayerID: "p1", Role: "guest"},
	}
	svc.add(context.Background(), *record("before"))
	svc.add(context.Background(), *bad)
	svc.add(context.Background(), *record("after"))

	svc.Flush(context.Background())
	assert.Zero(t, svc.Pending(), "the rejected record does not block the queue")
	assert.Equal(t, 2, sink.total())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	var rooms []string
	for _, b := range sink.batches {
		for _, rec := range b {
			rooms = append(rooms, rec.RoomID)
		}
	}
	assert.Equal(t, []string{"before", "after"}, rooms)
}

func TestLoneRejectedRecordIsDropped(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(&fakeQueue{}, sink, quietLogger(), 10, time.Hour)

	bad := record("bad")
	bad.Participants = []models.MatchParticipant{{PlayerID: "p"}, {PlayerID: "p"}}
	svc.add(context.Background(), *bad)

	svc.Flush(context.Background())
	assert.Zero(t, svc.Pending())
	assert.Zero(t, sink.total())
	assert.Equal(t, 2, sink.calls, "one batch attempt, then one per record")
}

func TestPopTimeoutFollowsFlushDelay(t *testing.T) {
	fast := NewService(&fakeQueue{}, &fakeSink{}, quietLogger(), 10, 200*time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, fast.popTimeout)

	slow := NewService(&fakeQueue{}, &fakeSink{}, quietLogger(), 10, time.Minute)
	assert.Equal(t, 3*time.Second, slow.popTimeout)
}
