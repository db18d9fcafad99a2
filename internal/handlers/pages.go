package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio/api/internal/middleware"
)

// safeNext keeps only same-site relative targets so the login page cannot be used as
// an open redirect.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

// LoginPage returns the context the login view renders with.
func (h HandlerSet) LoginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"page":  "login",
		"next":  safeNext(c.Query("next")),
		"error": c.Query("error"),
	})
}

// DashboardPage is only reached through the session gate.
func (h HandlerSet) DashboardPage(c *gin.Context) {
	claims, ok := middleware.SessionFrom(c)
	if !ok {
		c.Redirect(http.StatusTemporaryRedirect, h.cfg.Security.LoginPath)
		return
	}

	page := strings.Trim(c.Param("page"), "/")
	if page == "" {
		page = strings.Trim(strings.TrimPrefix(h.cfg.Security.DashboardHome, "/dashboard"), "/")
	}

	c.JSON(http.StatusOK, gin.H{
		"page": page,
		"admin": gin.H{
			"id":         claims.AdminID,
			"email":      claims.Email,
			"first_name": claims.FirstName,
			"last_name":  claims.LastName,
		},
	})
}
