package handler

import (
	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes mounts the auth and profile endpoints on the group.
// requireAuth guards the profile routes.
func RegisterAuthRoutes(group *gin.RouterGroup, h *AuthHandler, requireAuth gin.HandlerFunc) {
	auth := group.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/logout", h.Logout)

	profile := auth.Group("/profile", requireAuth)
	profile.GET("", h.GetProfile)
	profile.PUT("", h.UpdateProfile)
}
