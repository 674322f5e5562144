package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/iemipdd12/reports_backend/models"
	"github.com/iemipdd12/reports_backend/utils"
)

var errInvalidId = errors.New("invalid id")

func idParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidId.Error()})
		return 0, false
	}
	return id, true
}

// respondError writes the error body; unexpected errors are attached to the context for customErrorLogger.
func respondError(c *gin.Context, err error) {
	var (
		verr       *models.ValidationError
		fieldErrs  validator.ValidationErrors
		syntaxErr  *json.SyntaxError
		typeErr    *json.UnmarshalTypeError
		statusCode int
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
		return
	case errors.As(err, &fieldErrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
		return
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		statusCode = http.StatusBadRequest
	case errors.Is(err, utils.ErrorRecordNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, utils.ErrorInvalidReference):
		statusCode = http.StatusConflict
	case errors.Is(err, utils.ErrorUnauthorized), errors.Is(err, utils.ErrorInvalidCredential), errors.Is(err, utils.ErrorTokenRevoked):
		statusCode = http.StatusUnauthorized
	case errors.Is(err, utils.ErrorUnsupportedFile):
		statusCode = http.StatusUnsupportedMediaType
	case errors.Is(err, utils.ErrorFileTooLarge):
		statusCode = http.StatusRequestEntityTooLarge
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(statusCode, gin.H{"error": err.Error()})
}

// bindJSON reports binding failures itself and returns false.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			respondError(c, err)
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
