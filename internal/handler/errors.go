package handler

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/response"
	"github.com/stemsi/learntrack-backend/internal/validator"
)

// Identifiers end up in Redis keys, so they are restricted to a safe charset.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// pathID reads and checks a path parameter, writing a 400 if it is unusable.
func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if !idPattern.MatchString(id) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, map[string]string{name: "must be 1-128 characters of [A-Za-z0-9._:-]"})
		return "", false
	}
	return id, true
}

// failFromError maps the shared error taxonomy onto HTTP responses.
func failFromError(c *gin.Context, err error, notFound response.ErrCode) {
	switch {
	case apperror.IsValidation(err):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
	case errors.Is(err, apperror.ErrNotFound):
		response.Fail(c, http.StatusNotFound, notFound)
	case apperror.IsConflict(err):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case apperror.IsUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStoreUnavailable)
	default:
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
