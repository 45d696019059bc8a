package offlinecache

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"time"

	tee "github.com/always-cache/offline-cache/pkg/response-writer-tee"
)

// Fetcher is the network.
// An error means the request could not be completed at all;
// any HTTP status, including errors, is a successful fetch.
type Fetcher interface {
	Fetch(ctx context.Context, r *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, r *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	return f(ctx, r)
}

// OriginFetcher fetches from an origin server.
type OriginFetcher struct {
	originURL  url.URL
	originHost string
	client     http.Client
}

// NewOriginFetcher creates a fetcher for the origin.
// originHost is used for the Host header and TLS negotiation if not empty,
// e.g. if the origin URL is just an IP address.
// A zero timeout means no timeout.
func NewOriginFetcher(originURL url.URL, originHost string, timeout time.Duration) *OriginFetcher {
	o := &OriginFetcher{
		originURL:  originURL,
		originHost: originHost,
		client: http.Client{
			Timeout: timeout,
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	// use provided hostname for origin if configured
	if originHost != "" {
		o.client.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: originHost,
			},
		}
	}
	return o
}

// Fetch the resource specified in the incoming request from the origin.
func (o *OriginFetcher) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	uri := o.originURL.String() + r.URL.RequestURI()
	// need to specifically set body to nil on the outgoing request if content is zero length
	// see https://github.com/golang/go/issues/16036
	var body io.Reader = r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, uri, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength
	if o.originHost != "" {
		req.Host = o.originHost
	}
	copyHeader(req.Header, r.Header)
	// do not forward connection header, this causes trouble
	req.Header.Del("Connection")

	res, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	// as per https://www.rfc-editor.org/rfc/rfc9110#section-6.6.1-8
	if res.Header.Get("Date") == "" {
		res.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	return res, nil
}

// HandlerFetcher fetches by running an in-process handler,
// for using the worker as middleware.
type HandlerFetcher struct {
	handler http.Handler
}

func NewHandlerFetcher(handler http.Handler) *HandlerFetcher {
	return &HandlerFetcher{handler: handler}
}

func (h *HandlerFetcher) Fetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r = r.WithContext(ctx)
	rw := tee.NewResponseSaver(nil)
	h.handler.ServeHTTP(rw, r)
	return rw.HTTPResponse(r)
}
