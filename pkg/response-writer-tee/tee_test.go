package tee

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSavesAndTees(t *testing.T) {
	rec := httptest.NewRecorder()
	rs := NewResponseSaver(rec)
	rs.Header().Set("Content-Type", "text/css")
	rs.WriteHeader(http.StatusCreated)
	rs.Write([]byte("body {}"))

	if rec.Code != http.StatusCreated || rec.Body.String() != "body {}" {
		t.Fatalf("Underlying writer got %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/css" {
		t.Fatalf("Underlying Content-Type is %s", ct)
	}

	req, _ := http.NewRequest("GET", "/static/app.css", nil)
	res, err := rs.HTTPResponse(req)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusCreated || string(body) != "body {}" {
		t.Fatalf("Saved response is %d %s", res.StatusCode, body)
	}
	if res.Header.Get("Content-Type") != "text/css" {
		t.Fatalf("Saved headers are %+v", res.Header)
	}
}

func TestEmptyHandlerIsOK(t *testing.T) {
	rs := NewResponseSaver(nil)
	res, err := rs.HTTPResponse(nil)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if res.StatusCode != http.StatusOK || rs.StatusCode() != http.StatusOK {
		t.Fatalf("Status is %d", res.StatusCode)
	}
}
