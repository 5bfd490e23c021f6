package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flipbook-app/internal/dispatcher"
)

// createJob queues a PDF conversion and returns immediately.
func (s *Server) createJob(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respond(c, wrapBodyErr(err, "a PDF file is required"))
		return
	}
	data, err := s.readUpload(fh)
	if err != nil {
		respond(c, err)
		return
	}
	job, err := s.jobs.Submit(dispatcher.Work{
		Owner: currentUser(c).ID,
		Title: c.PostForm("title"),
		Kind:  c.PostForm("kind"),
		Data:  data,
	})
	if err != nil {
		respond(c, err)
		return
	}
	c.Header("Location", "/jobs/"+job.ID)
	c.JSON(http.StatusAccepted, job)
}

// getJob reports a job's progress. Other users' jobs are reported as missing.
func (s *Server) getJob(c *gin.Context) {
	job, ok := s.jobs.Job(c.Param("id"))
	if !ok || job.Owner != currentUser(c).ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}
