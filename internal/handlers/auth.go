package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio/api/internal/apperr"
	"portfolio/api/internal/middleware"
	"portfolio/api/internal/security"
	"portfolio/api/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("Email and password are required"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.cookies.SetSessionCookie(c.Writer, c.Request, result.Token, h.auth.Tokens().TTL())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"admin":   result.Admin,
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	h.cookies.ClearSessionCookie(c.Writer, c.Request)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h HandlerSet) CheckSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authenticated": h.auth.CheckSession(security.SessionToken(c.Request)),
	})
}

func (h HandlerSet) CSRFToken(c *gin.Context) {
	token, err := h.csrf.GetOrCreateToken(c.Writer, c.Request)
	if err != nil {
		h.respondError(c, apperr.Backend(err, ""))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"csrfToken": token})
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	claims, ok := middleware.SessionFrom(c)
	if !ok {
		h.respondError(c, apperr.InvalidSession("Invalid session. Please log in again."))
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("All password fields are required."))
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), claims.AdminID, service.ChangePasswordInput{
		OldPassword:     req.OldPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	}); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Password updated successfully.",
	})
}

// principalID accepts the admin id as a JSON string or number.
type principalID string

func (p *principalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = principalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = principalID(n.String())
	return nil
}

type updateProfileRequest struct {
	ID        principalID `json:"id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	claims, ok := middleware.SessionFrom(c)
	if !ok {
		h.respondError(c, apperr.InvalidSession("Invalid session. Please log in again."))
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("First name, last name, and email are required."))
		return
	}

	admin, err := h.auth.UpdateProfile(c.Request.Context(), claims.AdminID, service.ProfileInput{
		ID:        string(req.ID),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"admin":   admin,
	})
}
