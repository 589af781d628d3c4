// internal/historian/historian.go is the consumer side of the match queue. It
// pops finished match records, batches them, and persists each batch in one
// call to its sink.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/codebreak/internal/cache"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/sirupsen/logrus"
)

// Queue yields match records. Pop returns (nil, nil) when nothing arrived
// within timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.MatchRecord, error)
}

// Sink persists a batch of records atomically.
type Sink interface {
	SaveMatchRecords(ctx context.Context, recs []models.MatchRecord) error
}

// Service drains a Queue into a Sink.
type Service struct {
	queue      Queue
	sink       Sink
	logger     *logrus.Logger
	batchSize  int
	flushDelay time.Duration
	popTimeout time.Duration

	batchMu sync.Mutex
	batch   []models.MatchRecord
}

// NewService returns a Service flushing every batchSize records or every
// flushDelay, whichever comes first.
func NewService(queue Queue, sink Sink, logger *logrus.Logger, batchSize int, flushDelay time.Duration) *Service {
	if batchSize <= 0 {
		batchSize = 20
	}
	if flushDelay <= 0 {
		flushDelay = 500 * time.Millisecond
	}
	// a blocked pop must not hold back the ticker flush
	return &Service{
		queue:      queue,
		sink:       sink,
		logger:     logger,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		popTimeout: min(3*time.Second, flushDelay),
		batch:      make([]models.MatchRecord, 0, batchSize),
	}
}

// Run consumes until ctx is cancelled, then flushes whatever is buffered.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("codebreak-historian started")
	defer s.logger.Info("codebreak-historian stopped")

	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// the run context is gone; give the last flush its own deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Flush(flushCtx)
			return nil
		case <-ticker.C:
			s.Flush(ctx)
		default:
			rec, err := s.queue.Pop(ctx, s.popTimeout)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				if errors.Is(err, cache.ErrBadRecord) {
					s.logger.WithError(err).Warn("dropping undecodable match record")
					continue
				}
				s.logger.WithError(err).Error("queue pop failed")
				continue
			}
			if rec == nil {
				continue
			}
			s.add(ctx, *rec)
		}
	}
}

func (s *Service) add(ctx context.Context, rec models.MatchRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the buffered batch. A failed batch is kept and retried on
// the next flush, unless the sink rejected a record: then the batch is
// saved one record at a time and rejected records are dropped.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	if len(s.batch) == 0 {
		return
	}
	out := make([]models.MatchRecord, len(s.batch))
	copy(out, s.batch)

	err := s.sink.SaveMatchRecords(ctx, out)
	switch {
	case err == nil:
		s.batch = s.batch[:0]
		s.logger.WithField("count", len(out)).Info("flushed matches to database")
	case errors.Is(err, models.ErrRecordRejected):
		s.logger.WithError(err).WithField("count", len(out)).Warn("match batch rejected, saving records one by one")
		s.batch = s.saveEach(ctx, out)
	default:
		s.logger.WithError(err).WithField("count", len(out)).Error("failed to flush match batch")
	}
}

// saveEach stores recs individually and returns the ones left to retry.
func (s *Service) saveEach(ctx context.Context, recs []models.MatchRecord) []models.MatchRecord {
	kept := make([]models.MatchRecord, 0, s.batchSize)
	for _, rec := range recs {
		err := s.sink.SaveMatchRecords(ctx, []models.MatchRecord{rec})
		switch {
		case err == nil:
		case errors.Is(err, models.ErrRecordRejected):
			s.logger.WithError(err).WithField("matchId", rec.ID).Error("dropping rejected match record")
		default:
			kept = append(kept, rec)
		}
	}
	return kept
}

// Pending reports how many records are buffered.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
