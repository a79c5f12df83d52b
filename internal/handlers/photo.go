package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/media/sniffer"
	"github.com/lucasfragadev/gym-dev/internal/response"
	"github.com/lucasfragadev/gym-dev/internal/service"
)

// multipartOverhead is headroom for boundaries and part headers on top of
// the photo size limit.
const multipartOverhead = 64 << 10

func (h HandlerSet) UploadPhoto(c *gin.Context) {
	id, err := caller(c)
	if err != nil {
		fail(c, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.photos.MaxBytes()+multipartOverhead)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, apperr.Invalid("photo is too large"))
			return
		}
		fail(c, apperr.Invalid("file is required"))
		return
	}
	defer file.Close()

	result, err := h.photos.Upload(c.Request.Context(), service.PhotoInput{
		UserID:       id.UserID,
		File:         file,
		DeclaredType: sniffer.MimeTypeFromHTTP(http.Header(header.Header)),
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"user": result.Profile, "url": result.URL})
}
