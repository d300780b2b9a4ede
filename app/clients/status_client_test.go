package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"provision-svc/app/domains"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClient_Send(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody domains.StatusMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewStatusClient(server.URL, time.Second)
	err := client.Send(context.Background(), "tok-1", &domains.StatusMessage{
		EventType:   domains.EventTypeStart,
		Origin:      "curtin",
		Name:        "cmd-install",
		Description: "Installing",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPath, gotPath)
	assert.Equal(t, `OAuth oauth_token="tok-1"`, gotAuth)
	assert.Equal(t, "Installing", gotBody.Description)
}

func TestStatusClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		code      int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			err := NewStatusClient(server.URL, time.Second).SendRaw(context.Background(), "tok", []byte(`{}`))
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.code, statusErr.StatusCode)
			assert.Equal(t, "nope", statusErr.Body)
			assert.Equal(t, tt.permanent, statusErr.Permanent())
		})
	}
}
