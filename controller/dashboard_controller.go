package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	service "github.com/afuentesm/NormaTrack/service"
)

// Dashboard returns compliance percentages, evidence status counts and
// year-over-year movement, scoped by optional standard/area/year query
// parameters. Malformed requirements are listed under "problems" without
// failing the whole aggregation.
func (c *TrackerController) Dashboard(ctx *gin.Context) {
	filter := service.DashboardFilter{
		Standard: ctx.Query("standard"),
		Area:     ctx.Query("area"),
	}
	if rawYear := ctx.Query("year"); rawYear != "" {
		year, err := strconv.Atoi(rawYear)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year"})
			return
		}
		filter.Year = year
	}

	report, err := c.service.Dashboard(filter)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, report)
}
