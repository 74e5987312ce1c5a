package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rohits-web03/todo-api/internal/utils"
	"go.uber.org/zap"
)

// Recovery turns a panic into a 500 response instead of crashing the process.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					utils.JSONResponse(w, http.StatusInternalServerError, utils.Payload{
						Success: false,
						Error:   "Internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
