package services

import (
	"testing"

	"provision-svc/app/domains"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", 3600)

	token, err := svc.GenerateToken("node-abc")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	nodeID, err := svc.ResolveToken(token)
	require.NoError(t, err)
	assert.Equal(t, "node-abc", nodeID)
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService("test-secret", 3600)
	other, err := NewTokenService("other-secret", 3600).GenerateToken("node-abc")
	require.NoError(t, err)
	expired, err := NewTokenService("test-secret", -60).GenerateToken("node-abc")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", other},
		{"expired", expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodeID, err := svc.ResolveToken(tt.token)
			assert.ErrorIs(t, err, domains.ErrUnknownToken)
			assert.Empty(t, nodeID)
		})
	}
}
