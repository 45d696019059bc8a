package requestkey

import (
	"errors"
	"net/http"
	"testing"
)

func TestRequestFromKey(t *testing.T) {
	r, _ := http.NewRequest("GET", "http://dev.localhost/page?q=1#top", nil)
	key := Key(r)
	if key != "GET /page?q=1" {
		t.Fatalf("Key is %s", key)
	}
	req, err := Request(key)
	if err != nil {
		t.Fatalf("%s: %s", key, err)
	}
	if url := req.URL.String(); url != "/page?q=1" {
		t.Fatalf("Created request url for key %s is %s", key, url)
	}
	if req.Method != "GET" {
		t.Fatalf("Created request method for key %s is %s", key, req.Method)
	}
}

func TestKeyIgnoresHost(t *testing.T) {
	a, _ := http.NewRequest("GET", "http://one.localhost/static/app.css", nil)
	b, _ := http.NewRequest("GET", "/static/app.css", nil)
	if Key(a) != Key(b) {
		t.Fatalf("Keys differ: %s and %s", Key(a), Key(b))
	}
}

func TestMalformedKey(t *testing.T) {
	for _, key := range []string{"", "GET", " /path"} {
		if _, err := Request(key); !errors.Is(err, ErrorMalformedKey) {
			t.Fatalf("Expected malformed key error for %q, got %v", key, err)
		}
	}
}
