package controller

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/afuentesm/NormaTrack/models"
	service "github.com/afuentesm/NormaTrack/service"
)

// TrackerController manages HTTP requests for the compliance tracker.
type TrackerController struct {
	service *service.TrackerService
}

// NewTrackerController initializes the controller with the service.
func NewTrackerController(service *service.TrackerService) *TrackerController {
	return &TrackerController{service}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTarget),
		errors.Is(err, models.ErrInvalidPeriodicity),
		errors.Is(err, models.ErrMalformedPlan):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CreateRequirement handles requirement creation; the execution plan for the
// current year is generated server-side.
func (c *TrackerController) CreateRequirement(ctx *gin.Context) {
	var req models.Requirement
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := c.service.CreateRequirement(&req); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, req)
}

// ListRequirements returns the collection, optionally filtered by standard
// and responsible area.
func (c *TrackerController) ListRequirements(ctx *gin.Context) {
	reqs, err := c.service.ListRequirements(ctx.Query("standard"), ctx.Query("area"))
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"requirements": reqs,
		"total":        len(reqs),
	})
}

// GetRequirement returns a single requirement by id.
func (c *TrackerController) GetRequirement(ctx *gin.Context) {
	req, err := c.service.GetRequirement(ctx.Param("id"))
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, req)
}

// UpdateRequirement applies a partial-field merge.
func (c *TrackerController) UpdateRequirement(ctx *gin.Context) {
	var fields map[string]interface{}
	if err := ctx.ShouldBindJSON(&fields); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := c.service.UpdateRequirement(ctx.Param("id"), fields)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, req)
}

// DeleteRequirement removes a requirement permanently.
func (c *TrackerController) DeleteRequirement(ctx *gin.Context) {
	if err := c.service.DeleteRequirement(ctx.Param("id")); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Requirement deleted"})
}

// MarkExecution records executed/delayed flags for one month.
func (c *TrackerController) MarkExecution(ctx *gin.Context) {
	year, month, ok := yearMonthParams(ctx)
	if !ok {
		return
	}
	var body struct {
		Executed *bool `json:"executed"`
		Delayed  *bool `json:"delayed"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := c.service.MarkExecution(ctx.Param("id"), year, month, body.Executed, body.Delayed)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, req)
}

// SearchRequirements runs the full-text search.
func (c *TrackerController) SearchRequirements(ctx *gin.Context) {
	query := ctx.Query("q")
	if query == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}
	results, err := c.service.SearchRequirements(query)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message": "Search completed successfully",
		"results": results,
	})
}

// StreamRequirements delivers full-collection snapshots over SSE, one event
// per change, until the client disconnects.
func (c *TrackerController) StreamRequirements(ctx *gin.Context) {
	snapshots, cancel, err := c.service.SubscribeRequirements()
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	defer cancel()

	log.Println("StreamRequirements: subscriber connected")
	ctx.Stream(func(w io.Writer) bool {
		select {
		case snapshot, open := <-snapshots:
			if !open {
				return false
			}
			ctx.SSEvent("requirements", snapshot)
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
	log.Println("StreamRequirements: subscriber disconnected")
}

// yearMonthParams parses the :year and :month path segments.
func yearMonthParams(ctx *gin.Context) (int, int, bool) {
	year, err := strconv.Atoi(ctx.Param("year"))
	if err != nil || year < 2000 || year > 2100 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year"})
		return 0, 0, false
	}
	month, err := strconv.Atoi(ctx.Param("month"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid month"})
		return 0, 0, false
	}
	return year, month, true
}
