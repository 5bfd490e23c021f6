// Package flipbook converts uploaded PDFs into persisted flipbooks and reads
// them back for viewing and export.
package flipbook

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"image"
	_ "image/jpeg"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"flipbook-app/internal/blob"
	"flipbook-app/internal/export"
	"flipbook-app/internal/leaf"
	"flipbook-app/internal/logging"
	"flipbook-app/internal/pdf"
	"flipbook-app/internal/pipeline"
	"flipbook-app/internal/store"
	"flipbook-app/internal/viewer"
)

// DefaultTitle names a flipbook when neither the caller nor the document
// provides a title.
const DefaultTitle = "Untitled flipbook"

const (
	maxPending      = 32
	uploadWorkers   = 8
	maxTitleRunes   = 255
	defaultBlobPath = "leaves"
)

// Store is the persistence the service needs.
type Store interface {
	CreateFlipbook(ctx context.Context, flipbook *store.Flipbook) error
	FindFlipbook(ctx context.Context, id string) (store.Flipbook, error)
	ListFlipbooks(ctx context.Context, userID string) ([]store.Flipbook, error)
	UpdateFlipbook(ctx context.Context, id string, update store.FlipbookUpdate) (store.Flipbook, error)
	DeleteFlipbook(ctx context.Context, id string) error
}

type Options struct {
	// Prefix is prepended to blob keys.
	Prefix string
	// BaseURL is the public address of the API, used to build page URLs.
	BaseURL string
	Logger  logrus.FieldLogger
}

type Service struct {
	store    Store
	blobs    blob.Store
	pipeline *pipeline.Pipeline
	prefix   string
	baseURL  string
	log      logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]*pendingResult
}

// Result is a saved flipbook and the report of the conversion behind it.
type Result struct {
	Flipbook store.Flipbook  `json:"flipbook"`
	Report   pipeline.Report `json:"report"`
}

type pendingResult struct {
	owner   string
	title   string
	kind    string
	leaves  []leaf.Leaf
	report  pipeline.Report
	created time.Time
}

func NewService(s Store, blobs blob.Store, p *pipeline.Pipeline, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultBlobPath
	}
	return &Service{
		store:    s,
		blobs:    blobs,
		pipeline: p,
		prefix:   prefix,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		log:      logger,
		pending:  map[string]*pendingResult{},
	}
}

// Convert runs the pipeline over data to completion.
func (s *Service) Convert(ctx context.Context, data []byte) ([]leaf.Leaf, pipeline.Report, error) {
	return s.pipeline.Convert(ctx, data)
}

// Create converts data and saves the leaves as a new flipbook owned by owner.
// Nothing is saved if the conversion fails or ctx is cancelled. If saving
// fails the error is a *PersistenceError.
func (s *Service) Create(ctx context.Context, owner, title, kind string, data []byte) (Result, error) {
	kind, err := normalizeKind(kind)
	if err != nil {
		return Result{}, err
	}
	leaves, report, err := s.Convert(ctx, data)
	if err != nil {
		return Result{}, err
	}

	p := &pendingResult{
		owner:   owner,
		title:   resolveTitle(title, data),
		kind:    kind,
		leaves:  leaves,
		report:  report,
		created: time.Now(),
	}
	flipbook, err := s.persist(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		id := s.keep(p)
		s.log.WithFields(logrus.Fields{"owner": owner, "pending": id}).WithError(err).Error("could not save flipbook")
		return Result{Report: report}, &PersistenceError{PendingID: id, Err: err}
	}
	s.log.WithFields(logrus.Fields{"owner": owner, "flipbook": flipbook.ID, "leaves": flipbook.PageCount}).Info("flipbook created")
	return Result{Flipbook: flipbook, Report: report}, nil
}

// RetryPending saves a result kept by a failed Create.
func (s *Service) RetryPending(ctx context.Context, owner, pendingID string) (Result, error) {
	// The entry is taken out while it is being saved so that concurrent
	// retries cannot commit it twice.
	s.mu.Lock()
	p, ok := s.pending[pendingID]
	if ok && p.owner == owner {
		delete(s.pending, pendingID)
	}
	s.mu.Unlock()
	if !ok {
		return Result{}, ErrPendingNotFound
	}
	if p.owner != owner {
		return Result{}, ErrForbidden
	}

	flipbook, err := s.persist(ctx, p)
	if err != nil {
		s.mu.Lock()
		s.pending[pendingID] = p
		s.mu.Unlock()
		return Result{Report: p.report}, &PersistenceError{PendingID: pendingID, Err: err}
	}
	s.log.WithFields(logrus.Fields{"owner": owner, "flipbook": flipbook.ID, "pending": pendingID}).Info("pending flipbook saved")
	return Result{Flipbook: flipbook, Report: p.report}, nil
}

// PendingCount is the number of results waiting for a retry.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Service) keep(p *pendingResult) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) >= maxPending {
		var oldestID string
		var oldest time.Time
		for id, r := range s.pending {
			if oldestID == "" || r.created.Before(oldest) {
				oldestID, oldest = id, r.created
			}
		}
		delete(s.pending, oldestID)
		s.log.WithField("pending", oldestID).Warn("dropping oldest pending result")
	}
	id := uuid.NewString()
	s.pending[id] = p
	return id
}

// persist uploads every leaf and then writes the record in one transaction.
func (s *Service) persist(ctx context.Context, p *pendingResult) (store.Flipbook, error) {
	refs := make([]string, len(p.leaves))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadWorkers)
	for i, l := range p.leaves {
		g.Go(func() error {
			ref, err := s.blobs.Put(gctx, blob.LeafKey(s.prefix, l.Data), l.Data, leaf.MIMEType)
			if err != nil {
				return fmt.Errorf("storing %s leaf of page %d: %w", l.Side, l.Page, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return store.Flipbook{}, err
	}

	flipbook := store.Flipbook{UserID: p.owner, Title: p.title, Kind: p.kind, Pages: refs}
	if err := s.store.CreateFlipbook(ctx, &flipbook); err != nil {
		return store.Flipbook{}, err
	}
	return flipbook, nil
}

// CreateFromPages saves a flipbook from already produced pages: inline data
// URIs or references returned by the blob store.
func (s *Service) CreateFromPages(ctx context.Context, owner, title, kind string, pages []string) (store.Flipbook, error) {
	kind, err := normalizeKind(kind)
	if err != nil {
		return store.Flipbook{}, err
	}
	if err := validateRefs(pages); err != nil {
		return store.Flipbook{}, err
	}
	flipbook := store.Flipbook{UserID: owner, Title: resolveTitle(title, nil), Kind: kind, Pages: pages}
	if err := s.store.CreateFlipbook(ctx, &flipbook); err != nil {
		return store.Flipbook{}, err
	}
	return flipbook, nil
}

// CreateFromImages saves a flipbook from uploaded page images. Each image is
// re-encoded as a PNG leaf.
func (s *Service) CreateFromImages(ctx context.Context, owner, title, kind string, images [][]byte) (store.Flipbook, error) {
	kind, err := normalizeKind(kind)
	if err != nil {
		return store.Flipbook{}, err
	}
	p := &pendingResult{owner: owner, title: resolveTitle(title, nil), kind: kind, created: time.Now()}
	for i, data := range images {
		img, err := pdf.DecodeImage(data)
		if err != nil {
			return store.Flipbook{}, fmt.Errorf("%w: image %d: %v", ErrInvalidPage, i+1, err)
		}
		encoded, err := leaf.Encode(img)
		if err != nil {
			return store.Flipbook{}, fmt.Errorf("%w: image %d: %v", ErrInvalidPage, i+1, err)
		}
		b := img.Bounds()
		p.leaves = append(p.leaves, leaf.Leaf{Page: i + 1, Width: b.Dx(), Height: b.Dy(), Data: encoded})
	}
	return s.persist(ctx, p)
}

// Get returns the flipbook if requester owns it.
func (s *Service) Get(ctx context.Context, requester, id string) (store.Flipbook, error) {
	flipbook, err := s.store.FindFlipbook(ctx, id)
	if err != nil {
		return store.Flipbook{}, err
	}
	if flipbook.UserID != requester {
		return store.Flipbook{}, ErrForbidden
	}
	return flipbook, nil
}

func (s *Service) List(ctx context.Context, owner string) ([]store.Flipbook, error) {
	return s.store.ListFlipbooks(ctx, owner)
}

// Update replaces the title and/or the page sequence.
func (s *Service) Update(ctx context.Context, requester, id string, update store.FlipbookUpdate) (store.Flipbook, error) {
	if _, err := s.Get(ctx, requester, id); err != nil {
		return store.Flipbook{}, err
	}
	if update.Title != nil {
		title := clampTitle(*update.Title)
		if title == "" {
			title = DefaultTitle
		}
		update.Title = &title
	}
	if update.Pages != nil {
		if err := validateRefs(update.Pages); err != nil {
			return store.Flipbook{}, err
		}
	}
	return s.store.UpdateFlipbook(ctx, id, update)
}

// Delete removes the record. Blobs stay: content addressed leaves may be
// shared with other flipbooks.
func (s *Service) Delete(ctx context.Context, requester, id string) error {
	if _, err := s.Get(ctx, requester, id); err != nil {
		return err
	}
	if err := s.store.DeleteFlipbook(ctx, id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"owner": requester, "flipbook": id}).Info("flipbook deleted")
	return nil
}

// Leaf returns the bytes of leaf n (0-based).
func (s *Service) Leaf(ctx context.Context, flipbook store.Flipbook, n int) ([]byte, error) {
	if n < 0 || n >= len(flipbook.Pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidPage, n, len(flipbook.Pages))
	}
	return s.resolve(ctx, flipbook.Pages[n])
}

// Leaves resolves every reference of the flipbook to its leaf.
func (s *Service) Leaves(ctx context.Context, flipbook store.Flipbook) ([]leaf.Leaf, error) {
	leaves := make([]leaf.Leaf, len(flipbook.Pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadWorkers)
	for i, ref := range flipbook.Pages {
		g.Go(func() error {
			data, err := s.resolve(gctx, ref)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			// Stored refs keep no page positions; Page is the place in the sequence.
			l := leaf.Leaf{Page: i + 1, Data: data}
			if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
				l.Width, l.Height = cfg.Width, cfg.Height
			}
			leaves[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return leaves, nil
}

func (s *Service) resolve(ctx context.Context, ref string) ([]byte, error) {
	if leaf.IsDataURI(ref) {
		return leaf.ParseDataURI(ref)
	}
	return s.blobs.Get(ctx, ref)
}

// PageURL is the API address of leaf n (0-based).
func (s *Service) PageURL(flipbook store.Flipbook, n int) string {
	return fmt.Sprintf("%s/flipbooks/%s/pages/%d", s.baseURL, flipbook.ID, n+1)
}

// ViewerDocument describes the flipbook for the server rendered viewer.
func (s *Service) ViewerDocument(flipbook store.Flipbook, start int) viewer.Document {
	pages := make([]viewer.Page, len(flipbook.Pages))
	for i := range flipbook.Pages {
		pages[i] = viewer.Page{Src: safeURL(s.PageURL(flipbook, i))}
	}
	return viewer.Document{
		Title:  flipbook.Title,
		Labels: viewer.LabelsFor(flipbook.Kind),
		Pages:  pages,
		Start:  start,
	}
}

func (s *Service) ExportHTML(ctx context.Context, w io.Writer, flipbook store.Flipbook) error {
	leaves, err := s.Leaves(ctx, flipbook)
	if err != nil {
		return err
	}
	return export.HTML(w, flipbook.Title, viewer.LabelsFor(flipbook.Kind), leaves)
}

func (s *Service) ExportPDF(ctx context.Context, w io.Writer, flipbook store.Flipbook) error {
	leaves, err := s.Leaves(ctx, flipbook)
	if err != nil {
		return err
	}
	return export.PDF(w, flipbook.Title, leaves)
}

func normalizeKind(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", store.KindBook:
		return store.KindBook, nil
	case store.KindStory:
		return store.KindStory, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
}

// resolveTitle falls back to the document title, then DefaultTitle.
func resolveTitle(title string, data []byte) string {
	if t := clampTitle(title); t != "" {
		return t
	}
	if data != nil {
		if info, err := pdf.Inspect(data); err == nil {
			if t := clampTitle(info.Title); t != "" {
				return t
			}
		}
	}
	return DefaultTitle
}

func clampTitle(title string) string {
	title = strings.TrimSpace(title)
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes])
	}
	return title
}

func validateRefs(pages []string) error {
	for i, ref := range pages {
		switch {
		case leaf.IsDataURI(ref):
			if _, err := leaf.ParseDataURI(ref); err != nil {
				return fmt.Errorf("%w: page %d: %v", ErrInvalidPage, i+1, err)
			}
		case ref == "" || strings.Contains(ref, "://") || strings.Contains(ref, ".."):
			return fmt.Errorf("%w: page %d: unsupported reference", ErrInvalidPage, i+1)
		}
	}
	return nil
}

// safeURL marks an address built by PageURL as trusted. Page URLs are made
// from the configured base URL and a record id, never from user input.
func safeURL(u string) template.URL {
	return template.URL(u)
}
