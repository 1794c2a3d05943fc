// MODUL: errors
// ZWECK: Fehler-Codes und JSON-Fehlerantworten der HTTP-API
// INPUT: Fehler, gin.Context, Status-Code
// OUTPUT: {"code": ..., "message": ...}
// NEBENEFFEKTE: HTTP-Responses schreiben
// ABHAENGIGKEITEN: gin
// HINWEISE: Codes werden ueber errors.Is auf bekannte Sentinel-Fehler abgebildet
package server

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/ollama/aegan/dataset"
	"github.com/ollama/aegan/ml"
	"github.com/ollama/aegan/msssim"
	"github.com/ollama/aegan/summary"
)

var (
	errInvalidRequest = errors.New("invalid request")
	errSizeMismatch   = errors.New("images differ in size")
)

// APIError ist der Body jeder Fehlerantwort
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e APIError) Error() string {
	return e.Message
}

// errorCodes in Pruefreihenfolge
var errorCodes = []struct {
	err  error
	code string
}{
	{errInvalidRequest, "INVALID_REQUEST"},
	{errSizeMismatch, "SIZE_MISMATCH"},
	{dataset.ErrUnknownFormat, "UNSUPPORTED_FORMAT"},
	{dataset.ErrUnsupportedFormat, "UNSUPPORTED_FORMAT"},
	{msssim.ErrImageTooSmall, "IMAGE_TOO_SMALL"},
	{ml.ErrShape, "SHAPE_MISMATCH"},
	{ml.ErrNonFinite, "NON_FINITE"},
	{summary.ErrRunNotFound, "RUN_NOT_FOUND"},
}

func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "INTERNAL_ERROR"
}

// writeError bricht die Anfrage mit einer JSON-Fehlerantwort ab
func writeError(c *gin.Context, status int, err error) {
	resp := APIError{Code: errorCode(err), Message: err.Error()}

	var apiErr APIError
	if errors.As(err, &apiErr) {
		resp = apiErr
	}
	c.AbortWithStatusJSON(status, resp)
}
