package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ludolens/internal/manuals"
	"ludolens/internal/models"
	"ludolens/internal/pipeline"
)

// clientError carries a message that is safe to show to the caller.
type clientError struct {
	status int
	msg    string
}

func (e *clientError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &clientError{status: http.StatusBadRequest, msg: msg}
}

var (
	errRouteNotFound    = &clientError{status: http.StatusNotFound, msg: "Route not found."}
	errTooLarge         = &clientError{status: http.StatusRequestEntityTooLarge, msg: "File exceeds the maximum upload size."}
	errStillProcessing  = &clientError{status: http.StatusConflict, msg: "Manual is still being processed. Try again in a few moments."}
	errProcessingFailed = &clientError{status: http.StatusConflict, msg: "Manual processing failed. Upload it again."}
	errNotIndexed       = &clientError{status: http.StatusInternalServerError, msg: "Manual is not available for queries."}
	errMalformedJSON    = badRequest("Malformed JSON request body.")
	errManualIDRequired = badRequest("Manual id is required.")
	errQuestionRequired = badRequest("Question is required.")
	errImageRequired    = badRequest("Image is required.")
	errImageType        = badRequest("File must be an image.")
	errFileRequired     = badRequest("A PDF file is required.")
	errGameNameRequired = badRequest("Game name is required.")
	errPDFOnly          = badRequest("Only PDF files are allowed.")
)

// statusOf maps an error returned by a service to an HTTP status.
func statusOf(err error) int {
	var ce *clientError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &ce):
		return ce.status
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, manuals.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrManualNotFound), errors.Is(err, pipeline.ErrJobNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	var ce *clientError
	if errors.As(err, &ce) {
		return apiError{Code: codeFor(status, ce), Message: ce.msg}
	}
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "LL-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "LL-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "LL-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		msg := "Invalid request. Check inputs and retry."
		if errors.Is(err, manuals.ErrInvalidInput) {
			msg = err.Error()
		}
		return apiError{Code: "LL-API-4001", Message: msg}
	case status == http.StatusNotFound:
		if errors.Is(err, pipeline.ErrJobNotFound) {
			return apiError{Code: "LL-API-4004", Message: "No processing job found for this manual."}
		}
		return apiError{Code: "LL-API-4004", Message: "Manual not found."}
	case status == http.StatusRequestEntityTooLarge:
		return apiError{Code: "LL-API-4013", Message: errTooLarge.msg}
	}
	return apiError{Code: "LL-API-4000", Message: "Request failed."}
}

func codeFor(status int, ce *clientError) string {
	switch {
	case ce == errNotIndexed:
		return "LL-IDX-5003"
	case status == http.StatusConflict:
		return "LL-API-4009"
	case status == http.StatusNotFound:
		return "LL-API-4004"
	case status == http.StatusRequestEntityTooLarge:
		return "LL-API-4013"
	case status >= 500:
		return "LL-API-5000"
	}
	return "LL-API-4001"
}

func writeData(c *gin.Context, code int, data any) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

func writeErr(c *gin.Context, code int, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	apiErr := toAPIError(code, err)
	c.JSON(code, gin.H{
		"success": false,
		"error":   apiErr.Message,
		"code":    apiErr.Code,
	})
}

// fail writes err with the status it maps to.
func fail(c *gin.Context, err error) {
	writeErr(c, statusOf(err), err)
}
