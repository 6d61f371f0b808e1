package pace

import (
	"math/rand"
	"testing"
	"time"
)

func newScheduler(t *testing.T, cfg Config, seed int64) *Scheduler {
	t.Helper()
	s, err := New(cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRejectsBadRanges(t *testing.T) {
	base := Config{
		MinMessageDelay: 20 * time.Second, MaxMessageDelay: 90 * time.Second,
		MinBatchSize: 10, MaxBatchSize: 20,
		MinBatchDelay: 5 * time.Minute, MaxBatchDelay: 15 * time.Minute,
	}
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted message delay", func(c *Config) { c.MaxMessageDelay = time.Second }},
		{"negative message delay", func(c *Config) { c.MinMessageDelay = -time.Second }},
		{"zero batch size", func(c *Config) { c.MinBatchSize = 0 }},
		{"inverted batch size", func(c *Config) { c.MaxBatchSize = 5 }},
		{"inverted batch delay", func(c *Config) { c.MaxBatchDelay = time.Minute }},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if _, err := New(cfg, nil); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
	if _, err := New(base, nil); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestMessageDelayWithinRange(t *testing.T) {
	cfg := Config{
		MinMessageDelay: 20 * time.Second, MaxMessageDelay: 90 * time.Second,
		MinBatchSize: 10, MaxBatchSize: 20,
		MinBatchDelay: 5 * time.Minute, MaxBatchDelay: 15 * time.Minute,
	}
	s := newScheduler(t, cfg, 1)
	for i := 0; i < 500; i++ {
		d := s.NextMessageDelay()
		if d < cfg.MinMessageDelay || d > cfg.MaxMessageDelay {
			t.Fatalf("delay %s outside [%s, %s]", d, cfg.MinMessageDelay, cfg.MaxMessageDelay)
		}
	}
}

func TestPinnedRangesAreDeterministic(t *testing.T) {
	cfg := Config{
		MinMessageDelay: 30 * time.Second, MaxMessageDelay: 30 * time.Second,
		MinBatchSize: 4, MaxBatchSize: 4,
		MinBatchDelay: 10 * time.Minute, MaxBatchDelay: 10 * time.Minute,
	}
	s := newScheduler(t, cfg, 1)
	if d := s.NextMessageDelay(); d != 30*time.Second {
		t.Fatalf("message delay = %s", d)
	}
	if d := s.BatchRestDelay(); d != 10*time.Minute {
		t.Fatalf("batch delay = %s", d)
	}
	if r := s.Remaining(); r != 4 {
		t.Fatalf("remaining = %d", r)
	}
}

func TestBatchRestCadence(t *testing.T) {
	// Pinned batch size of 2: a rest is due after every second message.
	cfg := Config{
		MinMessageDelay: 0, MaxMessageDelay: 0,
		MinBatchSize: 2, MaxBatchSize: 2,
		MinBatchDelay: 5 * time.Second, MaxBatchDelay: 5 * time.Second,
	}
	s := newScheduler(t, cfg, 1)

	rests := 0
	for i := 0; i < 4; i++ {
		if s.ShouldTakeBatchRest() {
			if d := s.BatchRestDelay(); d != 5*time.Second {
				t.Fatalf("rest delay = %s", d)
			}
			rests++
		}
		s.RecordMessage()
	}
	// Rest before the 3rd message only: counter hits 2 after two sends.
	if rests != 1 {
		t.Fatalf("rests = %d, want 1", rests)
	}
	if !s.ShouldTakeBatchRest() {
		t.Fatal("rest not due after second full batch")
	}
}

func TestThresholdRedrawnAfterRest(t *testing.T) {
	cfg := Config{
		MinMessageDelay: 0, MaxMessageDelay: 0,
		MinBatchSize: 3, MaxBatchSize: 9,
		MinBatchDelay: 0, MaxBatchDelay: 0,
	}
	s := newScheduler(t, cfg, 42)

	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		n := 0
		for !s.ShouldTakeBatchRest() {
			s.RecordMessage()
			n++
		}
		if n < 3 || n > 9 {
			t.Fatalf("batch length %d outside [3, 9]", n)
		}
		seen[n] = true
		s.BatchRestDelay()
	}
	if len(seen) < 2 {
		t.Fatal("threshold never varied across rests")
	}
}

func TestApplySwapsRanges(t *testing.T) {
	cfg := Config{
		MinMessageDelay: time.Second, MaxMessageDelay: 2 * time.Second,
		MinBatchSize: 10, MaxBatchSize: 20,
		MinBatchDelay: time.Minute, MaxBatchDelay: 2 * time.Minute,
	}
	s := newScheduler(t, cfg, 1)

	cfg.MinMessageDelay = time.Hour
	cfg.MaxMessageDelay = time.Hour
	cfg.MinBatchSize = 1
	cfg.MaxBatchSize = 1
	if err := s.Apply(cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d := s.NextMessageDelay(); d != time.Hour {
		t.Fatalf("delay after Apply = %s", d)
	}
	s.RecordMessage()
	if !s.ShouldTakeBatchRest() {
		t.Fatal("redrawn threshold ignored new batch range")
	}

	cfg.MaxBatchSize = 0
	if err := s.Apply(cfg); err == nil {
		t.Fatal("Apply accepted invalid config")
	}
}
