package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"provision-svc/app/domains"
	"provision-svc/app/metrics"
	"provision-svc/app/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DefaultMaxStatusBodyBytes bounds a status request body
const DefaultMaxStatusBodyBytes int64 = 256 << 20

// StatusQueue accepts validated messages for asynchronous processing
type StatusQueue interface {
	QueueMessage(token string, msg domains.StatusMessage)
}

// StatusHandler receives status reports from machines. It never touches the
// database: accepted messages go straight to the queue.
type StatusHandler struct {
	queue        StatusQueue
	maxBodyBytes int64
	logger       zerolog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(queue StatusQueue, maxBodyBytes int64, logger zerolog.Logger) *StatusHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxStatusBodyBytes
	}
	return &StatusHandler{
		queue:        queue,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Submit handles a status report
func (h *StatusHandler) Submit(c *gin.Context) {
	token, ok := extractOAuthToken(c.GetHeader("Authorization"))
	if !ok {
		metrics.StatusMessagesReceived.WithLabelValues("unauthorized").Inc()
		c.Status(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.StatusMessagesReceived.WithLabelValues("too_large").Inc()
			c.String(http.StatusRequestEntityTooLarge, "Status payload exceeds %d bytes", h.maxBodyBytes)
			return
		}
		metrics.StatusMessagesReceived.WithLabelValues("read_error").Inc()
		c.String(http.StatusBadRequest, "Failed to read status payload: %v", err)
		return
	}

	msg, err := utils.ValidateStatusPayload(body)
	if err != nil {
		metrics.StatusMessagesReceived.WithLabelValues("invalid").Inc()
		h.logger.Debug().Err(err).Msg("rejected status payload")
		c.Data(http.StatusBadRequest, "text/plain; charset=utf-8", []byte(err.Error()))
		return
	}

	h.queue.QueueMessage(token, *msg)
	metrics.StatusMessagesReceived.WithLabelValues("accepted").Inc()
	c.Status(http.StatusNoContent)
}

// extractOAuthToken pulls the token out of an "OAuth oauth_token=..., ..."
// style header. Quoted values are unquoted.
func extractOAuthToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if scheme, rest, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "oauth") {
		header = rest
	}

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || strings.TrimSpace(key) != "oauth_token" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if value == "" {
			return "", false
		}
		return value, true
	}
	return "", false
}
