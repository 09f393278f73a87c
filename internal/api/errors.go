package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
)

const genericMessage = "internal server error"

func errorBody(kind, message string) gin.H {
	return gin.H{"error": gin.H{"kind": kind, "message": message}}
}

// fail renders err. Only validation and not-found messages reach the client.
func (s *Server) fail(c *gin.Context, operation string, err error) {
	details := services.Details(err)
	status := http.StatusInternalServerError
	message := genericMessage
	switch details.Kind {
	case services.KindValidation:
		status = http.StatusBadRequest
		message = details.Message
	case services.KindNotFound:
		status = http.StatusNotFound
		message = details.Message
	}
	if message == "" {
		message = http.StatusText(status)
	}

	logger := logging.WithContext(c.Request.Context(), s.logger)
	attrs := []logging.Attr{
		logging.String("operation", operation),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, "report query failed", "api.query_failed",
			append(attrs, logging.ErrorHint(err))...)
	} else {
		logger.Debug("request rejected", logging.Args(attrs...)...)
	}
	c.JSON(status, errorBody(string(details.Kind), message))
}

// recovery turns a handler panic into the standard internal error body.
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger := logging.WithContext(c.Request.Context(), s.logger)
		logging.ErrorWithContext(logger, "handler panicked", "api.panic",
			logging.Any("panic", recovered),
			logging.String("path", c.Request.URL.Path),
			logging.String(logging.FieldErrorKind, string(services.KindInternal)),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(string(services.KindInternal), genericMessage))
	})
}

func badRequest(err error) error {
	return services.Wrap(services.ErrValidation, "api", "parse query", err.Error(), err)
}
