package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UploadEvidence attaches evidence to one execution record. A multipart
// "file" part uploads to the evidence bucket; a JSON body with "url" records
// a link instead.
func (c *TrackerController) UploadEvidence(ctx *gin.Context) {
	year, month, ok := yearMonthParams(ctx)
	if !ok {
		return
	}
	id := ctx.Param("id")
	uploadedBy := currentUserEmail(ctx)

	file, header, err := ctx.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		req, err := c.service.UploadEvidence(id, year, month, file, header, uploadedBy)
		if err != nil {
			ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"message":     "Evidence uploaded successfully",
			"requirement": req,
		})
		return
	}

	var body struct {
		URL string `json:"url" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Provide a file part or a link URL"})
		return
	}
	req, err := c.service.LinkEvidence(id, year, month, body.URL, uploadedBy)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":     "Evidence link recorded successfully",
		"requirement": req,
	})
}

// ApproveEvidence moves pending or rejected evidence to APPROVED.
func (c *TrackerController) ApproveEvidence(ctx *gin.Context) {
	year, month, ok := yearMonthParams(ctx)
	if !ok {
		return
	}
	var body struct {
		Comment string `json:"comment"`
	}
	// Comment is optional on approval.
	_ = ctx.ShouldBindJSON(&body)

	req, err := c.service.ApproveEvidence(ctx.Param("id"), year, month, currentUserEmail(ctx), body.Comment)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":     "Evidence approved",
		"requirement": req,
	})
}

// RejectEvidence moves pending evidence to REJECTED; the reviewer comment is
// mandatory.
func (c *TrackerController) RejectEvidence(ctx *gin.Context) {
	year, month, ok := yearMonthParams(ctx)
	if !ok {
		return
	}
	var body struct {
		Comment string `json:"comment" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "A reviewer comment is required"})
		return
	}
	req, err := c.service.RejectEvidence(ctx.Param("id"), year, month, body.Comment)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":     "Evidence rejected",
		"requirement": req,
	})
}

// EvidenceAging returns how many whole days a rejected evidence has been
// open, for display aging.
func (c *TrackerController) EvidenceAging(ctx *gin.Context) {
	year, month, ok := yearMonthParams(ctx)
	if !ok {
		return
	}
	days, err := c.service.DaysOpen(ctx.Param("id"), year, month)
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"daysOpen": days})
}
