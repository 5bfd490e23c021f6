package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"flipbook-app/internal/flipbook"
	"flipbook-app/internal/leaf"
	"flipbook-app/internal/pipeline"
	"flipbook-app/internal/store"
	"flipbook-app/internal/viewer"
)

type flipbookJSON struct {
	store.Flipbook
	PageURLs []string `json:"page_urls"`
}

func (s *Server) toJSON(fb store.Flipbook) flipbookJSON {
	urls := make([]string, len(fb.Pages))
	for i := range fb.Pages {
		urls[i] = s.flipbooks.PageURL(fb, i)
	}
	return flipbookJSON{Flipbook: fb, PageURLs: urls}
}

func (s *Server) listFlipbooks(c *gin.Context) {
	list, err := s.flipbooks.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respond(c, err)
		return
	}
	out := make([]flipbookJSON, len(list))
	for i, fb := range list {
		out[i] = s.toJSON(fb)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getFlipbook(c *gin.Context) {
	fb, err := s.flipbooks.Get(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, s.toJSON(fb))
}

type pagesRequest struct {
	Title string   `json:"title"`
	Kind  string   `json:"kind"`
	Pages []string `json:"pages"`
}

// createFlipbook accepts a multipart PDF upload in "file", multipart page
// images in "pages", or a JSON body of already produced pages.
func (s *Server) createFlipbook(c *gin.Context) {
	ctx := c.Request.Context()
	owner := currentUser(c).ID

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req pagesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, wrapBodyErr(err, "a PDF file or a list of pages is required"))
			return
		}
		fb, err := s.flipbooks.CreateFromPages(ctx, owner, req.Title, req.Kind, req.Pages)
		if err != nil {
			respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"flipbook": s.toJSON(fb)})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		respond(c, wrapBodyErr(err, "invalid multipart form"))
		return
	}
	title, kind := formValue(form, "title"), formValue(form, "kind")

	if files := form.File["file"]; len(files) > 0 {
		data, err := s.readUpload(files[0])
		if err != nil {
			respond(c, err)
			return
		}
		res, err := s.flipbooks.Create(ctx, owner, title, kind, data)
		var persistErr *flipbook.PersistenceError
		if errors.As(err, &persistErr) {
			c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":      "the flipbook was converted but could not be saved, retry later",
				"pending_id": persistErr.PendingID,
				"report":     reportJSON(res.Report),
			})
			return
		}
		if err != nil {
			respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"flipbook": s.toJSON(res.Flipbook), "report": reportJSON(res.Report)})
		return
	}

	files := form.File["pages"]
	if len(files) == 0 {
		badRequest(c, "a PDF file or a list of pages is required")
		return
	}
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := s.readUpload(fh)
		if err != nil {
			respond(c, err)
			return
		}
		images = append(images, data)
	}
	fb, err := s.flipbooks.CreateFromImages(ctx, owner, title, kind, images)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"flipbook": s.toJSON(fb)})
}

func (s *Server) retryPending(c *gin.Context) {
	res, err := s.flipbooks.RetryPending(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"flipbook": s.toJSON(res.Flipbook), "report": reportJSON(res.Report)})
}

type updateRequest struct {
	Title *string  `json:"title"`
	Pages []string `json:"pages"`
}

func (s *Server) updateFlipbook(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, wrapBodyErr(err, "invalid update"))
		return
	}
	fb, err := s.flipbooks.Update(c.Request.Context(), currentUser(c).ID, c.Param("id"),
		store.FlipbookUpdate{Title: req.Title, Pages: req.Pages})
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, s.toJSON(fb))
}

func (s *Server) deleteFlipbook(c *gin.Context) {
	if err := s.flipbooks.Delete(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getPage serves leaf n, counted from 1.
func (s *Server) getPage(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 {
		badRequest(c, "page must be a positive number")
		return
	}
	fb, err := s.flipbooks.Get(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	data, err := s.flipbooks.Leaf(c.Request.Context(), fb, n-1)
	if err != nil {
		respond(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, leaf.MIMEType, data)
}

func (s *Server) viewFlipbook(c *gin.Context) {
	fb, err := s.flipbooks.Get(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	page := 1
	if p := c.Query("page"); p != "" {
		if page, err = strconv.Atoi(p); err != nil {
			badRequest(c, "page must be a number")
			return
		}
	}

	var buf bytes.Buffer
	if err := viewer.Render(&buf, s.flipbooks.ViewerDocument(fb, page-1)); err != nil {
		respond(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) exportHTML(c *gin.Context) {
	s.export(c, "html", "text/html; charset=utf-8", s.flipbooks.ExportHTML)
}

func (s *Server) exportPDF(c *gin.Context) {
	s.export(c, "pdf", "application/pdf", s.flipbooks.ExportPDF)
}

func (s *Server) export(c *gin.Context, ext, contentType string, write func(context.Context, io.Writer, store.Flipbook) error) {
	fb, err := s.flipbooks.Get(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		respond(c, err)
		return
	}
	// Buffer so a failure can still be reported as an error response.
	var buf bytes.Buffer
	if err := write(c.Request.Context(), &buf, fb); err != nil {
		respond(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="flipbook-%s.%s"`, fb.ID, ext))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// readUpload reads one uploaded file, enforcing the per-file limit.
func (s *Server) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > s.cfg.MaxFileBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", errTooLarge, fh.Filename, fh.Size)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxFileBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.cfg.MaxFileBytes {
		return nil, fmt.Errorf("%w: %s", errTooLarge, fh.Filename)
	}
	return data, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// wrapBodyErr keeps oversized bodies distinguishable from malformed ones.
func wrapBodyErr(err error, msg string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return &requestError{msg: msg}
}

type reportBody struct {
	PagesAttempted int                `json:"pages_attempted"`
	PagesRendered  int                `json:"pages_rendered"`
	LeafCount      int                `json:"leaf_count"`
	Partial        bool               `json:"partial"`
	Summary        string             `json:"summary"`
	Warnings       []pipeline.Warning `json:"warnings"`
}

func reportJSON(r pipeline.Report) reportBody {
	warnings := r.Warnings
	if warnings == nil {
		warnings = []pipeline.Warning{}
	}
	return reportBody{
		PagesAttempted: r.PagesAttempted,
		PagesRendered:  r.PagesRendered,
		LeafCount:      r.LeafCount,
		Partial:        r.Partial(),
		Summary:        r.String(),
		Warnings:       warnings,
	}
}
