package dispatcher

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"flipbook-app/internal/flipbook"
)

// Worker takes work off the queue until it is closed or ctx ends.
func Worker(ctx context.Context, id int, queue <-chan *Work, d *Dispatcher) {
	log := d.log.WithField("worker", id)
	log.Info("Starting worker...")

	for {
		select {
		case work, ok := <-queue:
			if !ok {
				return
			}
			processWork(ctx, log, work, d)
		case <-ctx.Done():
			return
		}
	}
}

func processWork(ctx context.Context, log logrus.FieldLogger, work *Work, d *Dispatcher) {
	log = log.WithFields(logrus.Fields{"job": work.JobID, "owner": work.Owner})
	log.Info("Worker received conversion")
	d.update(work.JobID, func(j *Job) { j.Status = StatusProcessing })

	res, err := d.creator.Create(ctx, work.Owner, work.Title, work.Kind, work.Data)
	// The document is not needed any more either way.
	work.Data = nil

	if err != nil {
		var persistErr *flipbook.PersistenceError
		pending := ""
		if errors.As(err, &persistErr) {
			pending = persistErr.PendingID
		}
		log.WithError(err).Warn("conversion failed")
		d.update(work.JobID, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
			j.PendingID = pending
			if pending != "" {
				j.Report = &res.Report
			}
		})
		return
	}

	log.WithField("flipbook", res.Flipbook.ID).Info("conversion completed")
	d.update(work.JobID, func(j *Job) {
		j.Status = StatusCompleted
		j.FlipbookID = res.Flipbook.ID
		j.Report = &res.Report
	})
}
