package requestkey

import (
	"fmt"
	"net/http"
	"strings"
)

var ErrorMalformedKey = fmt.Errorf("Malformed key")

const methodSeparator = " "

// Key returns the request identity used to look up stored responses.
// It consists of the method and the request URI (path and query).
// Scheme, host and fragment are not part of the key, since a bucket serves a single origin.
func Key(r *http.Request) string {
	return r.Method + methodSeparator + r.URL.RequestURI()
}

// Request generates a request that results in the given key.
func Request(key string) (*http.Request, error) {
	method, uri, found := strings.Cut(key, methodSeparator)
	if !found || method == "" || uri == "" {
		return nil, fmt.Errorf("%w: %q", ErrorMalformedKey, key)
	}
	return http.NewRequest(method, uri, nil)
}
