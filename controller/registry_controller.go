package controller

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/afuentesm/NormaTrack/models"
)

// Flat registry endpoints. Areas, plants and standards have no derived
// logic; they exist so requirements have something to reference by key.

func (c *TrackerController) CreateArea(ctx *gin.Context) {
	var area models.Area
	if err := ctx.ShouldBindJSON(&area); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := c.service.CreateArea(&area); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, area)
}

func (c *TrackerController) ListAreas(ctx *gin.Context) {
	areas, err := c.service.ListAreas()
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, areas)
}

func (c *TrackerController) DeleteArea(ctx *gin.Context) {
	if err := c.service.DeleteArea(ctx.Param("id")); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Area deleted"})
}

func (c *TrackerController) CreatePlant(ctx *gin.Context) {
	var plant models.Plant
	if err := ctx.ShouldBindJSON(&plant); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := c.service.CreatePlant(&plant); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, plant)
}

func (c *TrackerController) ListPlants(ctx *gin.Context) {
	plants, err := c.service.ListPlants()
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, plants)
}

func (c *TrackerController) DeletePlant(ctx *gin.Context) {
	if err := c.service.DeletePlant(ctx.Param("id")); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Plant deleted"})
}

func (c *TrackerController) CreateStandard(ctx *gin.Context) {
	var std models.StandardDef
	if err := ctx.ShouldBindJSON(&std); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := c.service.CreateStandard(&std); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, std)
}

func (c *TrackerController) ListStandards(ctx *gin.Context) {
	stds, err := c.service.ListStandards()
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, stds)
}

func (c *TrackerController) DeleteStandard(ctx *gin.Context) {
	if err := c.service.DeleteStandard(ctx.Param("id")); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Standard deleted"})
}

func (c *TrackerController) CreateUser(ctx *gin.Context) {
	var body struct {
		Name     string          `json:"name"`
		Email    string          `json:"email" binding:"required,email"`
		Password string          `json:"password" binding:"required"`
		Role     models.UserRole `json:"role"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user := models.User{Name: body.Name, Email: body.Email, Role: body.Role}
	if err := c.service.CreateUser(&user, body.Password); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, user)
}

func (c *TrackerController) ListUsers(ctx *gin.Context) {
	users, err := c.service.ListUsers()
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, users)
}

// StreamUsers delivers user-collection snapshots over SSE, one event per
// account change, until the client disconnects.
func (c *TrackerController) StreamUsers(ctx *gin.Context) {
	snapshots, cancel, err := c.service.SubscribeUsers()
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	defer cancel()

	ctx.Stream(func(w io.Writer) bool {
		select {
		case snapshot, open := <-snapshots:
			if !open {
				return false
			}
			ctx.SSEvent("users", snapshot)
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
}

func (c *TrackerController) DeleteUser(ctx *gin.Context) {
	if err := c.service.DeleteUser(ctx.Param("id")); err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}
