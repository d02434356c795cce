package transport

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/employee-management/internal"
)

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestMeta captures the caller's address and user agent.
func RequestMeta(r *http.Request) internal.RequestMeta {
	return internal.RequestMeta{
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// QueryInt64 parses an optional positive integer query parameter.
func QueryInt64(r *http.Request, name string) (int64, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, true, internal.NewValidationFieldError(name, name+" must be a positive integer", internal.ErrCodeInvalidFormat)
	}
	return v, true, nil
}

// RequiredQueryInt64 is QueryInt64 for mandatory parameters.
func RequiredQueryInt64(r *http.Request, name string) (int64, error) {
	v, ok, err := QueryInt64(r, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, internal.NewValidationFieldError(name, name+" is required", internal.ErrCodeRequired)
	}
	return v, nil
}

// QueryInt parses an optional non-negative int with a default.
func QueryInt(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return err == nil && v
}
