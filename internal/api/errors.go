package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"flipbook-app/internal/auth"
	"flipbook-app/internal/blob"
	"flipbook-app/internal/dispatcher"
	"flipbook-app/internal/flipbook"
	"flipbook-app/internal/pipeline"
)

var errTooLarge = errors.New("upload too large")

// requestError is a malformed request; msg is shown to the client.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

// respond writes the JSON error for err. Unknown errors are logged and hidden.
func respond(c *gin.Context, err error) {
	var (
		openErr    *pipeline.OpenError
		persistErr *flipbook.PersistenceError
		maxErr     *http.MaxBytesError
		reqErr     *requestError
	)
	switch {
	case errors.As(err, &reqErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": reqErr.msg})
	case errors.As(err, &openErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "the PDF could not be read, check the file and try again",
			"detail": openErr.Err.Error(),
		})
	case errors.As(err, &persistErr):
		c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":      "the flipbook was converted but could not be saved, retry later",
			"pending_id": persistErr.PendingID,
		})
	case errors.As(err, &maxErr), errors.Is(err, errTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
	case errors.Is(err, auth.ErrMissingCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
	case errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	case errors.Is(err, auth.ErrInvalidSession), errors.Is(err, auth.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	// Another user's flipbook answers like a missing one, which hides that it exists.
	case errors.Is(err, flipbook.ErrForbidden), errors.Is(err, flipbook.ErrNotFound),
		errors.Is(err, flipbook.ErrPendingNotFound), errors.Is(err, blob.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, flipbook.ErrInvalidPage), errors.Is(err, flipbook.ErrInvalidKind), errors.Is(err, blob.ErrInvalidRef):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dispatcher.ErrQueueFull), errors.Is(err, dispatcher.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "the conversion queue is full, try again later"})
	case errors.Is(err, dispatcher.ErrInvalidWork):
		c.JSON(http.StatusBadRequest, gin.H{"error": "a PDF file is required"})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
