package serializer

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestResponseToBytesBodyIntact(t *testing.T) {
	response := `HTTP/1.1 200 OK
Server: Test

This is the body`

	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		panic(err)
	}

	_, err = responseToBytes(res)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if fmt.Sprintf("%s", body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

func TestSnapshotSerialization(t *testing.T) {
	req, _ := http.NewRequest("GET", "/static/manifest.json", nil)
	res := http.Response{
		StatusCode: 201,
		Header:     map[string][]string{},
		Body:       io.NopCloser(strings.NewReader(`{"name":"app"}`)),
		Request:    req,
	}
	res.Header.Add("Test", "-ing")
	storedAt := time.Unix(1700000000, 0)
	bts, err := SnapshotToBytes(Snapshot{
		Response: &res,
		StoredAt: storedAt,
	})
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	// the live response is still readable
	if body, _ := io.ReadAll(res.Body); string(body) != `{"name":"app"}` {
		t.Fatalf("Live body is %s", body)
	}
	if res.Header.Get(storedAtHeaderName) != "" {
		t.Fatalf("Live response has extra header %+v", res.Header)
	}
	// deserialize
	res2, err := BytesToSnapshot(bts)
	if err != nil {
		t.Fatalf("Error creating response: %+v", err)
	}
	if res2.Response.StatusCode != 201 {
		t.Fatalf("Status is %d", res2.Response.StatusCode)
	}
	if res2.Response.Header.Get("Test") != "-ing" {
		t.Fatalf("Test header wrong %+v", res2.Response.Header)
	}
	if res2.Response.Header.Get(storedAtHeaderName) != "" {
		t.Fatalf("Wrong amount of headers %+v", res2.Response.Header)
	}
	if !res2.StoredAt.Equal(storedAt) {
		t.Fatalf("Stored at is %s", res2.StoredAt)
	}
	if res2.Response.Request == nil || res2.Response.Request.URL.Path != "/static/manifest.json" {
		t.Fatalf("Request not restored: %+v", res2.Response.Request)
	}
	if body, _ := io.ReadAll(res2.Response.Body); string(body) != `{"name":"app"}` {
		t.Fatalf("Stored body is %s", body)
	}
}

func TestMalformedSnapshot(t *testing.T) {
	if _, err := BytesToSnapshot([]byte("HTTP/1.1 200 OK\r\n\r\n")); err != ErrorMalformedSnapshot {
		t.Fatalf("Expected malformed snapshot, got %v", err)
	}
}
