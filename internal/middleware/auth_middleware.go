package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang/glog"
)

// contextKey is the type of the keys this package stores in a context.
type contextKey string

// AccessMethodKey records how a request proved it holds the access key.
const AccessMethodKey contextKey = "accessMethod"

// AccessKeyMiddleware guards the local API with a shared access key. The key
// is accepted as "Authorization: Bearer <key>", as an X-Access-Key header, or
// as an access_key query parameter for browser websockets, which cannot set
// headers. An empty accessKey disables the check.
func AccessKeyMiddleware(accessKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if accessKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// CORS preflight carries no credentials.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			presented, method := presentedKey(r)
			if presented == "" {
				writeJSONError(w, "missing access key", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(accessKey)) != 1 {
				glog.Warningf("middleware: bad access key from %s via %s", r.RemoteAddr, method)
				writeJSONError(w, "invalid access key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), AccessMethodKey, method)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func presentedKey(r *http.Request) (key, method string) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		headerParts := strings.SplitN(authHeader, " ", 2)
		if len(headerParts) == 2 && strings.EqualFold(headerParts[0], "bearer") {
			return strings.TrimSpace(headerParts[1]), "bearer"
		}
	}
	if key := r.Header.Get("X-Access-Key"); key != "" {
		return key, "header"
	}
	if key := r.URL.Query().Get("access_key"); key != "" {
		return key, "query"
	}
	return "", ""
}

// GetAccessMethodFromContext returns how the request was authorized.
func GetAccessMethodFromContext(ctx context.Context) (string, bool) {
	method, ok := ctx.Value(AccessMethodKey).(string)
	return method, ok
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
