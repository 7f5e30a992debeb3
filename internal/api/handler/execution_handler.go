package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/glue-pipeline/internal/api/dto"
	"github.com/cuongbtq/glue-pipeline/internal/workflow/domain"
	"github.com/cuongbtq/glue-pipeline/shared/database"
)

// GetDefinition handles GET /api/v1/definition
// Returns the state machine as a States Language document
func (h *ExecutionHandler) GetDefinition(c *gin.Context) {
	def := h.executions.Definition()

	asl, err := def.MarshalASL()
	if err != nil {
		h.logger.Error("Failed to render state machine", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to render state machine",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":       def.Name,
		"definition": json.RawMessage(asl),
	})
}

// StartExecution handles POST /api/v1/executions
// Starts an execution of the state machine in the background
func (h *ExecutionHandler) StartExecution(c *gin.Context) {
	var req dto.StartExecutionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Error("Invalid request body", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	if len(req.Input) > 0 && !json.Valid(req.Input) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "input must be valid JSON",
		})
		return
	}

	exec, err := h.executions.Start(c.Request.Context(), req.Name, req.Input)
	if err != nil {
		if errors.Is(err, domain.ErrExecutorStopped) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Service is shutting down",
			})
			return
		}
		h.logger.Error("Failed to start execution", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to start execution",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.NewExecutionDTO(exec))
}

// GetExecution handles GET /api/v1/executions/:execution_id
// Returns an execution with its history
func (h *ExecutionHandler) GetExecution(c *gin.Context) {
	executionID := c.Param("execution_id")

	if _, err := uuid.Parse(executionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "execution_id must be a valid UUID",
		})
		return
	}

	exec, err := h.store.GetExecution(c.Request.Context(), executionID)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Execution not found",
			})
			return
		}
		h.logger.Error("Failed to get execution", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get execution",
		})
		return
	}

	events, err := h.store.ListEvents(c.Request.Context(), executionID)
	if err != nil {
		h.logger.Error("Failed to list execution events", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get execution",
		})
		return
	}

	resp := dto.ExecutionDetailResponse{
		ExecutionDTO: dto.NewExecutionDTO(exec),
		Events:       make([]dto.EventDTO, len(events)),
	}
	for i, ev := range events {
		resp.Events[i] = dto.NewEventDTO(ev)
	}

	c.JSON(http.StatusOK, resp)
}

// ListExecutions handles GET /api/v1/executions
// Lists executions newest first with cursor pagination
func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	var req dto.ListExecutionsRequest
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

	execs, err := h.store.ListExecutions(c.Request.Context(), domain.ExecutionFilter{
		StateMachine: h.executions.Definition().Name,
		Status:       req.Status,
		PageSize:     size,
		Cursor:       cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list executions", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list executions",
		})
		return
	}

	hasMore := len(execs) > size
	if hasMore {
		execs = execs[:size]
	}

	resp := dto.ListExecutionsResponse{Executions: make([]dto.ExecutionDTO, len(execs))}
	for i, e := range execs {
		resp.Executions[i] = dto.NewExecutionDTO(e)
	}

	if hasMore {
		last := execs[len(execs)-1]
		resp.NextCursor = EncodeCursor(&database.Cursor{At: last.StartDate, ID: last.ExecutionID})
	}

	c.JSON(http.StatusOK, resp)
}
