package websocket

import (
	"net/url"
	"strings"

	"im-sync/internal/imtypes"
)

// BuildEndpoint turns the service base URL into the websocket endpoint for
// token: http becomes ws, https becomes wss, path is appended and the token is
// passed url-encoded in the "token" query parameter.
func BuildEndpoint(baseURL, path, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", &imtypes.ConfigurationError{Field: "token", Reason: "identity token is empty"}
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "", &imtypes.ConfigurationError{Field: "server.base_url", Reason: "invalid url " + strings.TrimSpace(baseURL)}
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", &imtypes.ConfigurationError{Field: "server.base_url", Reason: "unsupported scheme " + u.Scheme}
	}
	if path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
