// Package pace spreads sends out over time with randomized
// per-message delays and longer rests between batches.
package pace

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Config holds the delay ranges and batch sizing. Message and batch
// delays are drawn uniformly from their [Min, Max] ranges; the batch
// threshold is drawn from [MinBatchSize, MaxBatchSize] and redrawn
// after every rest.
type Config struct {
	MinMessageDelay time.Duration
	MaxMessageDelay time.Duration
	MinBatchSize    int
	MaxBatchSize    int
	MinBatchDelay   time.Duration
	MaxBatchDelay   time.Duration
}

func (c Config) validate() error {
	if c.MinMessageDelay < 0 || c.MaxMessageDelay < c.MinMessageDelay {
		return fmt.Errorf("message delay range [%s, %s] is invalid", c.MinMessageDelay, c.MaxMessageDelay)
	}
	if c.MinBatchSize < 1 || c.MaxBatchSize < c.MinBatchSize {
		return fmt.Errorf("batch size range [%d, %d] is invalid", c.MinBatchSize, c.MaxBatchSize)
	}
	if c.MinBatchDelay < 0 || c.MaxBatchDelay < c.MinBatchDelay {
		return fmt.Errorf("batch delay range [%s, %s] is invalid", c.MinBatchDelay, c.MaxBatchDelay)
	}
	return nil
}

// Scheduler tracks how many messages went out since the last rest and
// decides when the next rest is due.
type Scheduler struct {
	mu        sync.Mutex
	cfg       Config
	rng       *rand.Rand
	sinceRest int
	threshold int
}

// New builds a scheduler. A nil rng falls back to a time-seeded one.
func New(cfg Config, rng *rand.Rand) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Scheduler{cfg: cfg, rng: rng}
	s.threshold = s.drawThreshold()
	return s, nil
}

// Apply swaps in new ranges at runtime. The messages-since-rest count
// is kept; the rest threshold is redrawn from the new range.
func (s *Scheduler) Apply(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.threshold = s.drawThreshold()
	return nil
}

// NextMessageDelay draws the pause to insert before the next send.
func (s *Scheduler) NextMessageDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draw(s.cfg.MinMessageDelay, s.cfg.MaxMessageDelay)
}

// RecordMessage counts one completed send toward the current batch.
func (s *Scheduler) RecordMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinceRest++
}

// ShouldTakeBatchRest reports whether enough messages went out since
// the last rest to warrant a longer pause.
func (s *Scheduler) ShouldTakeBatchRest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinceRest >= s.threshold
}

// BatchRestDelay draws the rest duration, zeroes the batch counter and
// redraws the threshold for the next batch.
func (s *Scheduler) BatchRestDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinceRest = 0
	s.threshold = s.drawThreshold()
	return s.draw(s.cfg.MinBatchDelay, s.cfg.MaxBatchDelay)
}

// Remaining reports how many sends fit in the current batch before a
// rest is due.
func (s *Scheduler) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.threshold - s.sinceRest; r > 0 {
		return r
	}
	return 0
}

// Callers hold s.mu.
func (s *Scheduler) drawThreshold() int {
	if s.cfg.MinBatchSize == s.cfg.MaxBatchSize {
		return s.cfg.MinBatchSize
	}
	return s.cfg.MinBatchSize + s.rng.Intn(s.cfg.MaxBatchSize-s.cfg.MinBatchSize+1)
}

// Callers hold s.mu.
func (s *Scheduler) draw(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)+1))
}
