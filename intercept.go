package offlinecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	cachecontrol "github.com/always-cache/offline-cache/pkg/cache-control"
	cachestatus "github.com/always-cache/offline-cache/pkg/cache-status"
	requestkey "github.com/always-cache/offline-cache/pkg/request-key"
	serializer "github.com/always-cache/offline-cache/pkg/response-serializer"
	"github.com/always-cache/offline-cache/storage"

	"github.com/rs/zerolog"
)

// Intercept responds to the request using the network and the current bucket.
// It returns ErrNotHandled for requests it does not take part in (anything but GET,
// or any request before activation); those should go to the network unmodified.
// It returns an error wrapping ErrOffline if the network failed and nothing is stored.
func (w *Worker) Intercept(ctx context.Context, r *http.Request) (*http.Response, error) {
	res, _, err := w.intercept(ctx, r)
	return res, err
}

func (w *Worker) intercept(ctx context.Context, r *http.Request) (*http.Response, cachestatus.CacheStatus, error) {
	var cs cachestatus.CacheStatus
	if r.Method != http.MethodGet {
		cs.Forward(cachestatus.FwdReasonMethod)
		return nil, cs, ErrNotHandled
	}
	bucket := w.activeBucket()
	if bucket == nil {
		cs.Forward(cachestatus.FwdReasonBypass)
		cs.Detail = "inactive"
		return nil, cs, ErrNotHandled
	}

	key := requestkey.Key(r)
	log := w.log.With().Str("key", key).Logger()
	log.Trace().Str("strategy", string(w.strategy)).Msgf("Incoming request: %s %s", r.Method, r.URL.Path)

	if w.strategy == CacheFirst {
		if res := w.match(ctx, bucket, key, r, log); res != nil {
			cs.Hit()
			return res, cs, nil
		}
		cs.Forward(cachestatus.FwdReasonUriMiss)
	} else {
		cs.Forward(cachestatus.FwdReasonBypass)
	}

	res, err := w.fetcher.Fetch(ctx, r)
	if err == nil {
		if res.Request == nil {
			res.Request = r
		}
		if w.isStatic(r) && cachecontrol.MayStore(res) {
			w.storeWhenRead(bucket, key, res, log)
			cs.Stored = true
		}
		return res, cs, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, cs, ctxErr
	}

	log.Debug().Err(err).Msg("Network failed, using stored response")
	cs.Detail = "offline"
	if w.strategy != CacheFirst {
		if res := w.match(ctx, bucket, key, r, log); res != nil {
			cs.Hit()
			return res, cs, nil
		}
	}
	if w.fallbackKey != "" {
		if res := w.match(ctx, bucket, w.fallbackKey, r, log); res != nil {
			cs.Hit()
			cs.Detail = "offline-fallback"
			return res, cs, nil
		}
	}
	cs.Forward(cachestatus.FwdReasonMiss)
	return nil, cs, fmt.Errorf("%w: %s: %w", ErrOffline, key, err)
}

// isStatic reports whether responses for the request are stored while serving.
func (w *Worker) isStatic(r *http.Request) bool {
	return strings.Contains(r.URL.Path, w.staticPrefix)
}

// match returns the stored response for the key, or nil.
// Storage errors count as a miss.
func (w *Worker) match(ctx context.Context, bucket storage.Bucket, key string, r *http.Request, log zerolog.Logger) *http.Response {
	entry, found, err := bucket.Match(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read from bucket")
		return nil
	}
	if !found {
		log.Trace().Msg("Not stored")
		return nil
	}
	sRes, err := serializer.BytesToSnapshot(entry.Bytes)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read stored response")
		return nil
	}
	sRes.Response.Request = r
	return sRes.Response
}

// storeWhenRead copies the live body while the caller reads it,
// and stores the response once the body was read to the end.
// A body closed early is not stored.
func (w *Worker) storeWhenRead(bucket storage.Bucket, key string, res *http.Response, log zerolog.Logger) {
	stored := *res
	stored.Header = res.Header.Clone()
	res.Body = &storingBody{
		ReadCloser: res.Body,
		done: func(body []byte) {
			stored.Body = io.NopCloser(bytes.NewReader(body))
			entry, err := w.snapshot(key, &stored)
			if err != nil {
				log.Warn().Err(err).Msg("Could not copy response for storing")
				return
			}
			w.storeLater(bucket, entry, log)
		},
	}
}

type storingBody struct {
	io.ReadCloser
	buf  bytes.Buffer
	once sync.Once
	done func(body []byte)
}

func (b *storingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.buf.Write(p[:n])
	if err == io.EOF {
		b.once.Do(func() { b.done(b.buf.Bytes()) })
	}
	return n, err
}

// storeLater writes the entry in the background.
// Failures are logged and otherwise ignored.
func (w *Worker) storeLater(bucket storage.Bucket, entry storage.Entry, log zerolog.Logger) {
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		// not bound to the request, which may be done before the write
		if err := bucket.Put(context.Background(), entry); err != nil {
			log.Warn().Err(err).Msg("Could not write to bucket")
			return
		}
		log.Trace().Msg("Bucket write")
	}()
}

// ServeHTTP implements the http.Handler interface.
// Requests the worker does not handle go straight to the fetcher,
// and their responses are sent unmodified.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	res, cs, err := w.intercept(r.Context(), r)
	if errors.Is(err, ErrNotHandled) {
		res, err = w.fetcher.Fetch(r.Context(), r)
		if err != nil {
			w.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not fetch response")
			http.Error(rw, "Error contacting origin", http.StatusBadGateway)
			return
		}
		w.log.Trace().Str("method", r.Method).Str("url", r.URL.String()).Msg("Passed through")
		if err := writeResponse(rw, res); err != nil {
			w.log.Error().Err(err).Msg("Could not write response body to client")
		}
		return
	}
	if errors.Is(err, ErrOffline) {
		w.log.Warn().Err(err).Msg("Offline")
		rw.Header().Set("Cache-Status", cs.String())
		http.Error(rw, "Offline and not cached", http.StatusGatewayTimeout)
		return
	} else if err != nil {
		w.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not respond")
		http.Error(rw, "Error contacting origin", http.StatusBadGateway)
		return
	}
	if res.Request == nil {
		res.Request = r
	}
	if err := w.send(rw, res, cs); err != nil {
		w.log.Error().Err(err).Msg("Could not write response body to client")
	}
}

func (w *Worker) send(rw http.ResponseWriter, res *http.Response, status cachestatus.CacheStatus) error {
	isHit := 0
	if status.Status == cachestatus.StatusHit {
		isHit = 1
	}
	w.log.Debug().
		Str("method", res.Request.Method).
		Str("url", res.Request.URL.String()).
		Str("status", string(status.Status)).
		Str("fwd", string(status.FwdReason)).
		Bool("stored", status.Stored).
		Int("hit", isHit).
		Msg("Sending response to client")

	rw.Header().Add("Cache-Status", status.String())
	return writeResponse(rw, res)
}

func writeResponse(rw http.ResponseWriter, res *http.Response) error {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(rw.Header(), res.Header)
	rw.WriteHeader(res.StatusCode)
	if res.Body == nil {
		return nil
	}
	_, err := io.Copy(rw, res.Body)
	return err
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a warkaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" && k != "Connection" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
