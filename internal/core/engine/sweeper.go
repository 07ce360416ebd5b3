package engine

import (
	"context"
	"time"
)

// SweepFunc removes expired entries and reports how many were dropped.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper runs a SweepFunc on a fixed interval until its context ends.
type Sweeper struct {
	Name     string
	Interval time.Duration
	Sweep    SweepFunc

	// OnSweep observes each pass, including failed ones.
	OnSweep func(name string, removed int, err error)
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.Sweep == nil || s.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	removed, err := s.Sweep(ctx)
	if s.OnSweep != nil {
		s.OnSweep(s.Name, removed, err)
	}
}
