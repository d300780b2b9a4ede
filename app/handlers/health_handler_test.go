package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		pingErr        error
		expectedStatus int
		expectedBody   string
	}{
		{"health", "/health", nil, http.StatusOK, `"healthy"`},
		{"health ignores store", "/health", errors.New("down"), http.StatusOK, `"healthy"`},
		{"ready", "/ready", nil, http.StatusOK, `"ready"`},
		{"not ready", "/ready", errors.New("connection refused"), http.StatusServiceUnavailable, `"unavailable"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(stubPinger{err: tt.pingErr})
			router := gin.New()
			router.GET("/health", h.Health)
			router.GET("/ready", h.Ready)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
		})
	}
}
