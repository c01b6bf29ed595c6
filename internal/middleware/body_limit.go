package middleware

import (
	"net/http"
	"sort"
	"strings"
)

// BodyLimitOverride sets the limit for paths under PathPrefix. Prefixes
// match with or without the /api mount point.
type BodyLimitOverride struct {
	PathPrefix string
	MaxBytes   int64
}

// BodyLimits picks the byte limit of a request by path. The longest
// matching override wins; zero means unlimited.
type BodyLimits struct {
	defaultMax int64
	overrides  []BodyLimitOverride
}

func NewBodyLimits(defaultMax int64, overrides ...BodyLimitOverride) BodyLimits {
	kept := make([]BodyLimitOverride, 0, len(overrides))
	for _, o := range overrides {
		if o.PathPrefix != "" && o.MaxBytes > 0 {
			kept = append(kept, o)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return len(kept[i].PathPrefix) > len(kept[j].PathPrefix)
	})
	return BodyLimits{defaultMax: defaultMax, overrides: kept}
}

func (l BodyLimits) For(path string) int64 {
	apiPath := strings.TrimPrefix(path, "/api")
	for _, o := range l.overrides {
		if strings.HasPrefix(path, o.PathPrefix) || strings.HasPrefix(apiPath, o.PathPrefix) {
			return o.MaxBytes
		}
	}
	return l.defaultMax
}

// Handler refuses a declared Content-Length above the limit with 413.
// Bodies without a length are cut off by http.MaxBytesReader, which
// handlers see as *http.MaxBytesError.
func (l BodyLimits) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxBytes := l.For(r.URL.Path)
		if maxBytes > 0 {
			if r.ContentLength > maxBytes {
				writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large", map[string]int64{"maxBytes": maxBytes})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}
