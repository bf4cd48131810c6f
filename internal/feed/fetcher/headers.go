package fetcher

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter reads a Retry-After header value as integer seconds first,
// HTTP-date second. Unparseable values return ok=false.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		return time.Until(at), true
	}
	return 0, false
}

// ParseCacheControlMaxAge scans comma separated Cache-Control directives,
// case insensitively, for max-age=<seconds>. Malformed directives are
// ignored.
func ParseCacheControlMaxAge(value string) (time.Duration, bool) {
	for _, directive := range strings.Split(value, ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(strings.ToLower(directive), "max-age=") {
			continue
		}
		parts := strings.SplitN(directive, "=", 2)
		if len(parts) != 2 {
			continue
		}
		age, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
		if err != nil {
			continue
		}
		return time.Duration(age) * time.Second, true
	}
	return 0, false
}
