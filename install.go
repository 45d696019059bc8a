package offlinecache

import (
	"context"
	"fmt"
	"net/http"

	requestkey "github.com/always-cache/offline-cache/pkg/request-key"
	serializer "github.com/always-cache/offline-cache/pkg/response-serializer"
	"github.com/always-cache/offline-cache/storage"

	"golang.org/x/sync/errgroup"
)

// Install opens the bucket for the current version and stores every asset in it.
// It succeeds only if all assets were fetched with a successful status and stored;
// otherwise nothing from this attempt is stored and a *SetupError is returned.
// A failed install may be retried.
// Installing again with the same version and assets results in an equivalent bucket.
func (w *Worker) Install(ctx context.Context) error {
	w.mutex.Lock()
	if w.installing {
		w.mutex.Unlock()
		return ErrInstallInProgress
	}
	w.installing = true
	if w.state == StateUninitialized {
		w.state = StateInstalling
	}
	w.mutex.Unlock()

	w.log.Info().Int("assets", len(w.assets)).Msg("Installing")
	bucket, err := w.install(ctx)

	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.installing = false
	if err != nil {
		// a bucket from a previous successful install stays usable
		if w.bucket == nil {
			w.state = StateUninitialized
		}
		w.log.Error().Err(err).Msg("Install failed")
		return err
	}
	w.bucket = bucket
	w.log.Info().Msg("Installed")
	return nil
}

func (w *Worker) install(ctx context.Context) (storage.Bucket, error) {
	bucket, err := w.storage.Open(ctx, w.version)
	if err != nil {
		return nil, &SetupError{Err: err}
	}

	entries := make([]storage.Entry, len(w.assets))
	g, gctx := errgroup.WithContext(ctx)
	for i, asset := range w.assets {
		i, asset := i, asset
		g.Go(func() error {
			entry, err := w.fetchAsset(gctx, asset)
			if err != nil {
				return &SetupError{Asset: asset, Err: err}
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := bucket.AddAll(ctx, entries); err != nil {
		return nil, &SetupError{Err: err}
	}
	return bucket, nil
}

func (w *Worker) fetchAsset(ctx context.Context, asset string) (storage.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
	if err != nil {
		return storage.Entry{}, err
	}
	key := requestkey.Key(req)
	w.log.Trace().Str("key", key).Msg("Fetching asset")

	res, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return storage.Entry{}, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return storage.Entry{}, fmt.Errorf("bad status %d", res.StatusCode)
	}
	if res.Request == nil {
		res.Request = req
	}
	return w.snapshot(key, res)
}

// snapshot serializes the response into a bucket entry.
// The response body stays readable.
func (w *Worker) snapshot(key string, res *http.Response) (storage.Entry, error) {
	storedAt := w.now()
	bts, err := serializer.SnapshotToBytes(serializer.Snapshot{
		Response: res,
		StoredAt: storedAt,
	})
	if err != nil {
		return storage.Entry{}, err
	}
	return storage.Entry{
		Key:      key,
		StoredAt: storedAt,
		Bytes:    bts,
	}, nil
}
