package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// Poller centralizes the polling-based reactivity of the client: one job
// per data category, each on its own cadence. A failed tick is logged and
// waits for the next interval; there is no retry-with-backoff.
type Poller struct {
	mu   sync.Mutex
	jobs []pollJob
	wg   sync.WaitGroup
}

type pollJob struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// NewPoller creates an empty poller
func NewPoller() *Poller {
	return &Poller{}
}

// Every registers a job to run on the given cadence once the poller starts
func (p *Poller) Every(name string, interval time.Duration, run func(ctx context.Context) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, pollJob{name: name, interval: interval, run: run})
}

// Start runs every registered job until the context is cancelled. Each job
// runs once immediately, then on its interval.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	jobs := append([]pollJob(nil), p.jobs...)
	p.mu.Unlock()

	for _, job := range jobs {
		p.wg.Add(1)
		go func(job pollJob) {
			defer p.wg.Done()

			if err := job.run(ctx); err != nil {
				log.Printf("poll %s: %v", job.name, err)
			}

			ticker := time.NewTicker(job.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := job.run(ctx); err != nil {
						log.Printf("poll %s: %v", job.name, err)
					}
				}
			}
		}(job)
	}
}

// Wait blocks until every job has stopped after context cancellation
func (p *Poller) Wait() {
	p.wg.Wait()
}
