package middlewares

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIdHeader carries the per-request correlation id.
	RequestIdHeader = "X-Request-Id"

	// ViewerHeader is set by the fronting session layer after it has
	// authenticated the user. It carries the numeric viewer id; requests
	// without it are anonymous.
	ViewerHeader = "X-Viewer-Id"

	viewerKey = "viewer_id"
)

// RequestId assigns every request a correlation id, echoed back in the
// response headers so log lines can be tied to a request.
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIdHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(RequestIdHeader, id)
		c.Header(RequestIdHeader, id)
		c.Next()
	}
}

// Viewer parses the authenticated viewer id forwarded by the session layer
// into the request context. A missing or malformed header means an anonymous
// request, not an error; authorization itself is the session layer's job.
func Viewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ViewerHeader)
		if raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				c.Set(viewerKey, id)
			}
		}
		c.Next()
	}
}

// ViewerID returns the authenticated viewer's id, nil for anonymous requests.
func ViewerID(c *gin.Context) *int64 {
	v, ok := c.Get(viewerKey)
	if !ok {
		return nil
	}
	id, ok := v.(int64)
	if !ok {
		return nil
	}
	return &id
}
