package cache

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusHeader reports whether a response was served from the cache.
const StatusHeader = "X-Cache"

// responseRecorder keeps a copy of the body written through gin.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Middleware serves GET responses from store, keyed by the exact path and query string.
// Only 200 responses are stored. Store failures are logged and the request proceeds uncached.
func Middleware(store Store, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("response_cache")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := c.Request.URL.RequestURI()

		body, ok, err := store.Get(ctx, key)
		if err != nil {
			logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			c.Header(StatusHeader, "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			c.Abort()
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Header(StatusHeader, "MISS")
		c.Next()

		if recorder.Status() != http.StatusOK || recorder.body.Len() == 0 {
			return
		}
		if err := store.Set(ctx, key, recorder.body.Bytes(), ttl); err != nil {
			logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
}
