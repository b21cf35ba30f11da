// Package scheduler wraps robfig/cron to run the daily absentee sweep.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper marks students without a record as absent.
type Sweeper interface {
	SweepAbsent(ctx context.Context) (int, error)
}

// Engine manages the cron scheduler.
type Engine struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
}

// New creates an Engine evaluating schedules in loc.
func New(sweeper Sweeper, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		cron:    cron.New(cron.WithLocation(loc)),
		sweeper: sweeper,
		timeout: 5 * time.Minute,
	}
}

// AddSweep registers the absentee sweep under a standard 5-field cron expression.
func (e *Engine) AddSweep(spec string) error {
	if _, err := e.cron.AddFunc(spec, e.runSweep); err != nil {
		return fmt.Errorf("scheduler.AddSweep: parse cron %q: %w", spec, err)
	}
	return nil
}

// Start runs the cron engine until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.cron.Start()
	go func() {
		<-ctx.Done()
		<-e.cron.Stop().Done()
	}()
}

// Next reports when the earliest registered job fires next.
func (e *Engine) Next() time.Time {
	var next time.Time
	for _, entry := range e.cron.Entries() {
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	return next
}

func (e *Engine) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	n, err := e.sweeper.SweepAbsent(ctx)
	if err != nil {
		log.Printf("scheduler: absent sweep: %v (marked %d)", err, n)
		return
	}
	log.Printf("scheduler: absent sweep marked %d students", n)
}
