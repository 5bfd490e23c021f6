// Package pipeline turns a PDF into an ordered sequence of leaves.
//
// Pages are rasterized on a bounded worker pool and emitted strictly in page
// order, left leaf before right. A page that fails to render contributes no
// leaves; a leaf that fails to encode is dropped without affecting its
// sibling. Only a document that cannot be opened fails the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"flipbook-app/internal/leaf"
	"flipbook-app/internal/logging"
	"flipbook-app/internal/pdf"
)

const (
	DefaultWorkers      = 4
	DefaultReorderDepth = 8
)

type Options struct {
	// Scale multiplies page size in points to pixels.
	Scale float64
	// Workers bounds how many pages render at once.
	Workers int
	// ReorderDepth bounds how far rendering may run ahead of the next page
	// to emit. It is raised to Workers if smaller.
	ReorderDepth int
	// Encode replaces the PNG encoder, mostly for tests.
	Encode leaf.EncodeFunc
	Logger logrus.FieldLogger
}

type Pipeline struct {
	rasterizer pdf.Rasterizer
	splitter   *leaf.Splitter
	opts       Options
	log        logrus.FieldLogger
}

func New(rasterizer pdf.Rasterizer, opts Options) *Pipeline {
	if opts.Scale <= 0 {
		opts.Scale = pdf.DefaultScale
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ReorderDepth <= 0 {
		opts.ReorderDepth = DefaultReorderDepth
	}
	if opts.ReorderDepth < opts.Workers {
		opts.ReorderDepth = opts.Workers
	}
	splitter := leaf.NewSplitter()
	if opts.Encode != nil {
		splitter.Encode = opts.Encode
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{rasterizer: rasterizer, splitter: splitter, opts: opts, log: logger}
}

// Process opens the document and returns a run whose leaves are produced
// lazily as they are consumed. An unparseable document yields *OpenError and
// no run. A caller that does not iterate the run's leaves must Close it.
func (p *Pipeline) Process(ctx context.Context, data []byte) (*Run, error) {
	doc, err := p.rasterizer.Open(data)
	if err != nil {
		var openErr *OpenError
		if !errors.As(err, &openErr) {
			err = &OpenError{Err: err}
		}
		p.log.WithError(err).Warn("could not open document")
		return nil, err
	}
	return &Run{
		p:     p,
		ctx:   ctx,
		doc:   doc,
		pages: doc.PageCount(),
		state: Opened,
		log:   p.log.WithField("pages", doc.PageCount()),
	}, nil
}

// Convert runs the document to completion and returns every leaf.
func (p *Pipeline) Convert(ctx context.Context, data []byte) ([]leaf.Leaf, Report, error) {
	run, err := p.Process(ctx, data)
	if err != nil {
		return nil, Report{}, err
	}
	return run.Collect()
}

// Report summarises a finished run.
type Report struct {
	PagesAttempted int       `json:"pages_attempted"`
	PagesRendered  int       `json:"pages_rendered"`
	LeafCount      int       `json:"leaf_count"`
	Warnings       []Warning `json:"warnings"`
}

// Partial reports whether some pages or leaves were lost.
func (r Report) Partial() bool {
	return r.LeafCount < 2*r.PagesAttempted
}

func (r Report) String() string {
	return fmt.Sprintf("%d of %d pages rendered, %d leaves", r.PagesRendered, r.PagesAttempted, r.LeafCount)
}

type State int

const (
	Opened State = iota
	Processing
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Opened:
		return "opened"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Run is one pass over an opened document. Its leaf sequence can be iterated
// once.
type Run struct {
	p     *Pipeline
	ctx   context.Context
	doc   pdf.Document
	pages int
	log   logrus.FieldLogger

	mu      sync.Mutex
	started bool
	state   State
	report  Report
	err     error

	closeOnce sync.Once
}

// PageCount is the number of pages in the document.
func (r *Run) PageCount() int { return r.pages }

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Report is complete once the sequence has been fully consumed.
func (r *Run) Report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := r.report
	rep.Warnings = append([]Warning(nil), r.report.Warnings...)
	return rep
}

// Err is the context error if the run was cancelled.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close releases the document. It is called automatically when the sequence
// finishes. A run closed before iteration yields no leaves.
func (r *Run) Close() error {
	r.mu.Lock()
	if !r.started {
		r.started = true
		r.state = Cancelled
	}
	r.mu.Unlock()
	var err error
	r.closeOnce.Do(func() { err = r.doc.Close() })
	return err
}

// Collect drains the sequence.
func (r *Run) Collect() ([]leaf.Leaf, Report, error) {
	leaves := make([]leaf.Leaf, 0, 2*r.pages)
	for l := range r.Leaves() {
		leaves = append(leaves, l)
	}
	return leaves, r.Report(), r.Err()
}

type pageResult struct {
	page     int
	leaves   []leaf.Leaf
	warnings []error
	rendered bool
	err      error
}

// Leaves returns the ordered leaf sequence. Iterating a second time yields
// nothing. Stopping early cancels the remaining work.
func (r *Run) Leaves() iter.Seq[leaf.Leaf] {
	return func(yield func(leaf.Leaf) bool) {
		r.mu.Lock()
		if r.started {
			r.mu.Unlock()
			return
		}
		r.started = true
		r.state = Processing
		r.mu.Unlock()
		defer r.Close()

		ctx, cancel := context.WithCancel(r.ctx)
		defer cancel()

		depth := r.p.opts.ReorderDepth
		slots := make(chan struct{}, depth)
		results := make(chan pageResult, depth)

		go r.feed(ctx, slots, results)

		pending := make(map[int]pageResult, depth)
		next := 1
		stopped := false
		for res := range results {
			if stopped {
				continue
			}
			pending[res.page] = res
			for {
				res, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				<-slots
				next++
				if !r.record(res, yield) {
					stopped = true
					cancel()
					break
				}
			}
		}

		r.finish(next > r.pages)
	}
}

// feed schedules pages in order. A slot is taken before a page starts and
// given back when the page is emitted, so at most ReorderDepth pages are
// rendered or buffered ahead of the consumer.
func (r *Run) feed(ctx context.Context, slots chan struct{}, results chan<- pageResult) {
	defer close(results)

	g := new(errgroup.Group)
	g.SetLimit(r.p.opts.Workers)
	for page := 1; page <= r.pages; page++ {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			g.Wait()
			return
		}
		g.Go(func() error {
			results <- r.processPage(ctx, page)
			return nil
		})
	}
	g.Wait()
}

func (r *Run) processPage(ctx context.Context, page int) (res pageResult) {
	res.page = page
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	defer func() {
		if v := recover(); v != nil {
			res = pageResult{page: page, warnings: []error{&RenderError{Page: page, Err: fmt.Errorf("panic: %v", v)}}}
		}
	}()

	surface, err := r.doc.Render(ctx, page, r.p.opts.Scale)
	if err != nil {
		if ctx.Err() != nil {
			res.err = ctx.Err()
			return res
		}
		var renderErr *RenderError
		if !errors.As(err, &renderErr) {
			err = &RenderError{Page: page, Err: err}
		}
		res.warnings = append(res.warnings, err)
		return res
	}
	res.rendered = true

	for side, out := range r.p.splitter.SplitPage(page, surface) {
		if out.Err != nil {
			res.warnings = append(res.warnings, &EncodingError{Page: page, Side: leaf.Side(side), Err: errors.Unwrap(out.Err)})
			continue
		}
		res.leaves = append(res.leaves, out.Leaf)
	}
	return res
}

// record folds one page into the report and yields its leaves. It returns
// false once the consumer stops.
func (r *Run) record(res pageResult, yield func(leaf.Leaf) bool) bool {
	if res.err != nil {
		r.mu.Lock()
		r.err = res.err
		r.mu.Unlock()
		return false
	}

	r.mu.Lock()
	r.report.PagesAttempted++
	if res.rendered {
		r.report.PagesRendered++
	}
	for _, err := range res.warnings {
		r.report.Warnings = append(r.report.Warnings, warningFor(err))
	}
	r.mu.Unlock()

	for _, err := range res.warnings {
		r.log.WithField("page", res.page).WithError(err).Warn("skipping")
	}

	for _, l := range res.leaves {
		r.mu.Lock()
		r.report.LeafCount++
		r.mu.Unlock()
		if !yield(l) {
			return false
		}
	}
	return true
}

func (r *Run) finish(complete bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		complete = false
	}
	if !complete && r.err == nil {
		r.err = r.ctx.Err()
		if r.err == nil {
			r.err = context.Canceled
		}
	}
	if !complete {
		r.state = Cancelled
		r.log.WithError(r.err).Info("run cancelled")
		return
	}
	r.state = Completed
	r.log.WithFields(logrus.Fields{
		"attempted": r.report.PagesAttempted,
		"rendered":  r.report.PagesRendered,
		"leaves":    r.report.LeafCount,
		"warnings":  len(r.report.Warnings),
	}).Info("run completed")
}
