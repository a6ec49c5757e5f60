package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecg-guardrail-server/internal/domain"
	"github.com/ecg-guardrail-server/internal/rbac"
)

// maxUploadBytes caps import file size.
const maxUploadBytes = 10 << 20

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"version":   Version,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleScore(c *gin.Context) {
	var req domain.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := s.guardrail.Score(c.Request.Context(), rbac.CallerFrom(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTrendSeries(c *gin.Context) {
	var req domain.TrendSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := s.guardrail.TrendSeries(c.Request.Context(), rbac.CallerFrom(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNarrative(c *gin.Context) {
	var req domain.NarrativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := s.guardrail.Narrate(c.Request.Context(), rbac.CallerFrom(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRanges(c *gin.Context) {
	resp, err := s.guardrail.References(c.Query("version"), c.Query("age_band"), c.Query("sex"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleVersions(c *gin.Context) {
	versions, err := s.guardrail.Versions()
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// readUpload returns the bytes of the multipart "file" field
func readUpload(c *gin.Context) ([]byte, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("multipart field \"file\" is required: %w", err)
	}
	if header.Size > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}

	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	return io.ReadAll(io.LimitReader(f, maxUploadBytes))
}

func (s *Server) handleImportCSV(c *gin.Context) {
	data, err := readUpload(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	resp, err := s.imports.ImportCSV(c.Request.Context(), rbac.CallerFrom(c), bytes.NewReader(data))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleImportJSON(c *gin.Context) {
	data, err := readUpload(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	resp, err := s.imports.ImportJSON(c.Request.Context(), rbac.CallerFrom(c), data)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, total, err := s.imports.ListJobs(c.Request.Context(), rbac.CallerFrom(c), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list, "total": total})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.imports.GetJob(c.Request.Context(), rbac.CallerFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleAuditEvents(c *gin.Context) {
	events, err := s.audit.Events(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleAuditVerify(c *gin.Context) {
	report, err := s.audit.Verify(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}
