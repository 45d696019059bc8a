package serializer

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const storedAtHeaderName = "Offline-Cache-Stored-At"

var ErrorMalformedSnapshot = errors.New("Malformed response snapshot")

// Snapshot is a stored response together with the time it was stored.
type Snapshot struct {
	Response *http.Response
	// The value of the clock at the time the response was stored.
	StoredAt time.Time
}

var delim = []byte("\r\n\r\n----\r\n\r\n")

// SnapshotToBytes returns the stored representation of the response:
// the request that resulted in it followed by the HTTP/1.1 representation of the response.
// The response body is read completely and replaced with an identical one,
// so the response is still usable when this returns.
func SnapshotToBytes(sRes Snapshot) ([]byte, error) {
	res := sRes.Response
	req := res.Request
	buf := &bytes.Buffer{}

	if req != nil {
		// only the request line and headers are needed
		reqCopy := req.Clone(req.Context())
		reqCopy.Body = nil
		reqCopy.RequestURI = ""
		reqCopy.ContentLength = 0
		if err := reqCopy.Write(buf); err != nil {
			log.Warn().Err(err).Msg("Could not write request to bytes")
		}
	} else {
		log.Trace().Msg("Request not set")
	}
	buf.Write(delim)

	res.Header.Set(storedAtHeaderName, strconv.FormatInt(sRes.StoredAt.Unix(), 10))
	bts, err := responseToBytes(res)
	// remove the extra header from the live response
	res.Header.Del(storedAtHeaderName)
	if err != nil {
		return nil, err
	}
	buf.Write(bts)

	return buf.Bytes(), nil
}

// BytesToSnapshot reads a snapshot written by SnapshotToBytes.
func BytesToSnapshot(b []byte) (Snapshot, error) {
	sRes := Snapshot{}
	res, err := bytesToResponse(b)
	if err != nil {
		return sRes, err
	}
	sRes.Response = res
	storedAtInt, err := strconv.ParseInt(res.Header.Get(storedAtHeaderName), 10, 64)
	if err != nil {
		return sRes, err
	}
	sRes.StoredAt = time.Unix(storedAtInt, 0)
	sRes.Response.Header.Del(storedAtHeaderName)
	return sRes, nil
}

// bytesToResponse converts a byte slice to a http.Response.
func bytesToResponse(b []byte) (*http.Response, error) {
	reqBytes, resBytes, found := bytes.Cut(b, delim)
	if !found {
		return nil, ErrorMalformedSnapshot
	}
	var req *http.Request
	if len(reqBytes) > 0 {
		var err error
		req, err = http.ReadRequest(bufio.NewReader(bytes.NewReader(reqBytes)))
		if err != nil {
			log.Warn().Err(err).Bytes("bytes", reqBytes).Msg("Could not read request from stored response")
		}
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(resBytes)), req)
}

// responseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response
func responseToBytes(res *http.Response) ([]byte, error) {
	// responses built by hand may lack a protocol version
	if res.ProtoMajor == 0 {
		res.Proto, res.ProtoMajor, res.ProtoMinor = "HTTP/1.1", 1, 1
	}
	// write response to buffer
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	bts := buf.Bytes()
	// set response body back
	clonedRes, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(clonedRes.Body)
	if err != nil {
		return nil, err
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	return bts, nil
}
