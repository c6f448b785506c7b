package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"im-sync/internal/imtypes"
)

func TestBuildEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		path    string
		token   string
		want    string
	}{
		{"http becomes ws", "http://localhost:8080", "/ws", "abc", "ws://localhost:8080/ws?token=abc"},
		{"https becomes wss", "https://chat.example.com", "ws", "abc", "wss://chat.example.com/ws?token=abc"},
		{"ws kept", "ws://localhost:8080/", "/ws", "abc", "ws://localhost:8080/ws?token=abc"},
		{"base path kept", "https://example.com/realtime", "/ws", "abc", "wss://example.com/realtime/ws?token=abc"},
		{"token encoded", "http://localhost:8080", "/ws", "a b+c/=", "ws://localhost:8080/ws?token=a+b%2Bc%2F%3D"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildEndpoint(tt.baseURL, tt.path, tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildEndpointErrors(t *testing.T) {
	var cfgErr *imtypes.ConfigurationError

	_, err := BuildEndpoint("http://localhost:8080", "/ws", "")
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "token", cfgErr.Field)

	_, err = BuildEndpoint("ftp://localhost", "/ws", "abc")
	require.ErrorAs(t, err, &cfgErr)

	_, err = BuildEndpoint("not a url", "/ws", "abc")
	require.ErrorAs(t, err, &cfgErr)
}
