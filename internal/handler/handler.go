package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-cluster-go/internal/service"
	"github.com/jengzang/records-cluster-go/pkg/response"
)

// respondError maps service errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	switch {
	case service.IsNotFound(err):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrRunNotFinished):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrServiceStopping):
		response.Error(c, http.StatusServiceUnavailable, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid run ID")
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter, falling back to def when it is
// missing or malformed.
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

func createdBy(c *gin.Context) string {
	if user := c.GetString("user"); user != "" {
		return user
	}
	return "anonymous"
}
