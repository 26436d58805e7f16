package audit

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/d9705996/granthub/internal/model"
)

// attackPatterns match request fragments that commonly appear in probes:
// SQL injection, path traversal, and script injection.
var attackPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)union\s+select`),
	regexp.MustCompile(`(?i)'\s*or\s+'?1'?\s*=\s*'?1`),
	regexp.MustCompile(`(?i);\s*drop\s+table`),
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon(?:load|error|click)\s*=`),
}

// LooksSuspicious reports whether the request path or raw query matches a
// known attack pattern. The query is checked both raw and URL-decoded.
func LooksSuspicious(path, rawQuery string) bool {
	candidates := []string{path, rawQuery}
	if decoded, err := url.QueryUnescape(rawQuery); err == nil && decoded != rawQuery {
		candidates = append(candidates, decoded)
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, p := range attackPatterns {
			if p.MatchString(c) {
				return true
			}
		}
	}
	return false
}

// SanitizeQuery redacts obviously sensitive parameters before a query
// string is stored in a data access log.
func SanitizeQuery(rawQuery string) map[string]any {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		if isSensitiveParam(k) {
			out[k] = "[redacted]"
			continue
		}
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// QueryParams returns the request's sanitized query parameters in the shape
// a data access log row stores them.
func QueryParams(r *http.Request) model.JSONMap {
	return model.JSONMap(SanitizeQuery(r.URL.RawQuery))
}

func isSensitiveParam(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "password") || strings.Contains(n, "token") || strings.Contains(n, "secret")
}
