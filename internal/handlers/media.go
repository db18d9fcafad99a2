package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio/api/internal/apperr"
	"portfolio/api/internal/service"
)

func (h HandlerSet) UploadMedia(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, h.uploads.TooLarge())
			return
		}
		h.respondError(c, apperr.ValidationField("file", "A file is required."))
		return
	}
	defer file.Close()

	result, err := h.uploads.Upload(c.Request.Context(), service.UploadInput{
		File:         file,
		Filename:     header.Filename,
		Size:         header.Size,
		DeclaredType: header.Header.Get("Content-Type"),
		ExpectedKind: c.PostForm("kind"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"media":   result,
	})
}

type deleteMediaRequest struct {
	Key string `json:"key"`
}

func (h HandlerSet) DeleteMedia(c *gin.Context) {
	var req deleteMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.ValidationField("key", "Invalid media key."))
		return
	}

	if err := h.uploads.Delete(c.Request.Context(), req.Key); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
