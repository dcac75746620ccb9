package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"retailstock/internal/core/apperror"
	appctx "retailstock/internal/core/context"
	"retailstock/internal/infrastructure/idempotency"
	"retailstock/pkg/logger"
)

const (
	HeaderIdempotencyKey    = "X-Idempotency-Key"
	HeaderIdempotentReplay  = "X-Idempotent-Replay"
	maxIdempotencyBodyBytes = 1 << 20 // 1 MiB
	maxIdempotencyKeyLength = 255
)

// Idempotency middleware protects against duplicate requests.
// A request carrying X-Idempotency-Key runs at most once per key and user;
// a replay gets the stored response. 2xx and 4xx responses are stored,
// anything else releases the key so the client may retry.
func Idempotency(store idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			_ = c.Error(apperror.NewValidation("idempotency key is too long").
				WithDetail("max", maxIdempotencyKeyLength))
			c.Abort()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, err := io.ReadAll(limited)
		if err != nil {
			_ = c.Error(apperror.NewValidation("cannot read request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		req := idempotency.Request{
			Key:         key,
			UserID:      appctx.GetUserID(c.Request.Context()),
			Operation:   c.Request.Method + " " + c.Request.URL.Path,
			RequestHash: idempotency.HashBody(body),
		}

		replay, err := store.Acquire(c.Request.Context(), req)
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}
		if replay != nil {
			replay.Normalize()
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// Render a handler error now so the stored body is the one returned.
		writeError(c)

		// The request context may be cancelled already; finishing the key must not be.
		ctx := appctx.Detach(c.Request.Context())
		resp := idempotency.Replay{
			StatusCode:  w.Status(),
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}

		switch status := w.Status(); {
		case status >= 200 && status < 300:
			err = store.Complete(ctx, req, resp)
		case status >= 400 && status < 500:
			err = store.Fail(ctx, req, resp)
		default:
			err = store.Release(ctx, req)
		}
		if err != nil {
			logger.Warn(ctx, "failed to finish idempotency key", "key", key, "error", err)
		}
	}
}

// captureWriter tees the response body for storage.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
