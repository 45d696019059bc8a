package cachecontrol

import (
	"net/http"
	"strings"
)

type CacheControl struct {
	m map[string]string
}

func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.m[directive]
	return val, ok
}

func (c CacheControl) Has(directive string) bool {
	_, ok := c.m[directive]
	return ok
}

// Parse parses all Cache-Control field lines of the header.
// Directive names are case-insensitive and stored lower case.
func Parse(header http.Header) CacheControl {
	m := make(map[string]string)
	for _, line := range header.Values("Cache-Control") {
		for _, directive := range strings.Split(line, ",") {
			directive = strings.TrimSpace(directive)
			if directive == "" {
				continue
			}
			name, val, _ := strings.Cut(directive, "=")
			m[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(val), `"`)
		}
	}
	return CacheControl{m}
}

// MayStore reports whether the response may be written to the offline cache.
// Only complete successful responses without no-store are stored.
func MayStore(res *http.Response) bool {
	if res == nil || res.StatusCode != http.StatusOK {
		return false
	}
	return !Parse(res.Header).Has("no-store")
}
