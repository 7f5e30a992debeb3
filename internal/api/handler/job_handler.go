package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/glue-pipeline/internal/api/dto"
	"github.com/cuongbtq/glue-pipeline/internal/job/domain"
	"github.com/cuongbtq/glue-pipeline/shared/database"
)

// GetJobRun handles GET /api/v1/jobs/runs/:run_id
func (h *JobHandler) GetJobRun(c *gin.Context) {
	runID := c.Param("run_id")

	if err := domain.ValidateRunID(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "run_id is not a valid job run id",
		})
		return
	}

	run, err := h.jobs.GetJobRun(c.Request.Context(), h.jobName, runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job run not found",
			})
			return
		}
		h.logger.Error("Failed to get job run", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job run",
		})
		return
	}

	c.JSON(http.StatusOK, dto.NewJobRunDTO(run))
}

// ListJobRuns handles GET /api/v1/jobs/runs
func (h *JobHandler) ListJobRuns(c *gin.Context) {
	var req dto.ListJobRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	size := pageSize(req.PageSize)

	cursor, err := DecodeCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	runs, err := h.jobs.ListJobRuns(c.Request.Context(), domain.RunFilter{
		State:    req.State,
		PageSize: size,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list job runs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list job runs",
		})
		return
	}

	hasMore := len(runs) > size
	if hasMore {
		runs = runs[:size]
	}

	resp := dto.ListJobRunsResponse{JobRuns: make([]dto.JobRunDTO, len(runs))}
	for i, run := range runs {
		resp.JobRuns[i] = dto.NewJobRunDTO(run)
	}

	if hasMore {
		last := runs[len(runs)-1]
		resp.NextCursor = EncodeCursor(&database.Cursor{At: last.StartedOn, ID: last.RunID})
	}

	c.JSON(http.StatusOK, resp)
}

// StopJobRun handles POST /api/v1/jobs/runs/:run_id/stop
func (h *JobHandler) StopJobRun(c *gin.Context) {
	runID := c.Param("run_id")

	if err := domain.ValidateRunID(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "run_id is not a valid job run id",
		})
		return
	}

	err := h.jobs.StopJobRun(c.Request.Context(), h.jobName, runID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"run_id": runID,
			"state":  domain.RunStateStopped,
		})
	case errors.Is(err, domain.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job run not found",
		})
	case errors.Is(err, domain.ErrRunNotActive):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Job run is not active",
		})
	default:
		h.logger.Error("Failed to stop job run", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to stop job run",
		})
	}
}
