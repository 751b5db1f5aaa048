// Package response writes the JSON envelope shared by every admin API endpoint.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	// Details lists individual problems, e.g. every validation failure of a sync run.
	Details []string `json:"details,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Accepted sends 202 for work queued in the background.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Body{Success: true, Data: data})
}

// Fail sends an error envelope with the given status.
func Fail(c *gin.Context, status int, err string) {
	c.JSON(status, Body{Error: err})
}

func BadRequest(c *gin.Context, err string)   { Fail(c, http.StatusBadRequest, err) }
func Unauthorized(c *gin.Context, err string) { Fail(c, http.StatusUnauthorized, err) }
func Forbidden(c *gin.Context, err string)    { Fail(c, http.StatusForbidden, err) }
func NotFound(c *gin.Context, err string)     { Fail(c, http.StatusNotFound, err) }
func Conflict(c *gin.Context, err string)     { Fail(c, http.StatusConflict, err) }

// BadGateway is used when the registry, not this service, failed.
func BadGateway(c *gin.Context, err string)         { Fail(c, http.StatusBadGateway, err) }
func ServiceUnavailable(c *gin.Context, err string) { Fail(c, http.StatusServiceUnavailable, err) }
func Internal(c *gin.Context, err string)           { Fail(c, http.StatusInternalServerError, err) }

// Unprocessable sends 422 with the individual problems in Details.
func Unprocessable(c *gin.Context, err string, details []string) {
	c.JSON(http.StatusUnprocessableEntity, Body{Error: err, Details: details})
}
