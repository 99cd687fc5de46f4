package controller

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Login verifies credentials and opens a cookie session.
func (c *TrackerController) Login(ctx *gin.Context) {
	var body struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := c.service.Authenticate(body.Email, body.Password)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	sess := sessions.Default(ctx)
	sess.Set("user_id", user.ID)
	sess.Set("email", user.Email)
	sess.Set("role", string(user.Role))
	if err := sess.Save(); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open session"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Logged in successfully",
		"user":    user,
	})
}

// Logout clears the session.
func (c *TrackerController) Logout(ctx *gin.Context) {
	sess := sessions.Default(ctx)
	sess.Clear()
	if err := sess.Save(); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear session"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// currentUserEmail reads the signed-in user from the session for provenance
// fields; empty when the route is reachable without auth.
func currentUserEmail(ctx *gin.Context) string {
	sess := sessions.Default(ctx)
	if email, ok := sess.Get("email").(string); ok {
		return email
	}
	return ""
}
