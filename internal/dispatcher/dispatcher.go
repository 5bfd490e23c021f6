package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flipbook-app/config"
	"flipbook-app/internal/flipbook"
	"flipbook-app/internal/logging"
)

var (
	ErrQueueFull   = errors.New("dispatcher: queue is full")
	ErrInvalidWork = errors.New("dispatcher: invalid work")
	ErrStopped     = errors.New("dispatcher: stopped")
)

// finishedJobTTL is how long a finished job stays queryable.
const finishedJobTTL = time.Hour

// Creator runs one conversion.
type Creator interface {
	Create(ctx context.Context, owner, title, kind string, data []byte) (flipbook.Result, error)
}

// Dispatcher queues conversions and hands them to a fixed set of workers.
type Dispatcher struct {
	creator Creator
	queue   chan *Work
	workers int
	log     logrus.FieldLogger

	mu      sync.Mutex
	jobs    map[string]*Job
	stopped bool
	wg      sync.WaitGroup
}

func New(creator Creator, cfg config.DispatcherConfig, logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 10
	}
	return &Dispatcher{
		creator: creator,
		queue:   make(chan *Work, size),
		workers: workers,
		log:     logger,
		jobs:    map[string]*Job{},
	}
}

// Start launches the workers. They run until Stop is called or ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	d.log.WithField("workers", d.workers).Info("Starting dispatcher...")
	for i := 1; i <= d.workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			Worker(ctx, id, d.queue, d)
		}(i)
	}
}

// Stop closes the queue and waits for queued work to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Submit queues work and returns its job. It never blocks: a full queue is
// reported as ErrQueueFull.
func (d *Dispatcher) Submit(work Work) (Job, error) {
	if !work.IsValid() {
		return Job{}, ErrInvalidWork
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return Job{}, ErrStopped
	}
	d.prune(time.Now())

	now := time.Now().UTC()
	job := &Job{ID: uuid.NewString(), Owner: work.Owner, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}
	work.JobID = job.ID

	select {
	case d.queue <- &work:
	default:
		return Job{}, ErrQueueFull
	}
	d.jobs[job.ID] = job
	d.log.WithFields(logrus.Fields{"job": job.ID, "owner": work.Owner}).Info("conversion queued")
	return *job, nil
}

// Job returns a snapshot of the job with the given id.
func (d *Dispatcher) Job(id string) (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (d *Dispatcher) update(id string, fn func(*Job)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if job, ok := d.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = time.Now().UTC()
	}
}

func (d *Dispatcher) prune(now time.Time) {
	for id, job := range d.jobs {
		if job.Done() && now.Sub(job.UpdatedAt) > finishedJobTTL {
			delete(d.jobs, id)
		}
	}
}
