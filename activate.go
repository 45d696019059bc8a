package offlinecache

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	requestkey "github.com/always-cache/offline-cache/pkg/request-key"
	"github.com/always-cache/offline-cache/storage"
)

// MigrationFunc is a cleanup action for the bucket of a previous version.
// It gets the stale bucket and the bucket of the current version.
type MigrationFunc func(ctx context.Context, from, to storage.Bucket) error

// Activate deletes all buckets not named by the current version
// and starts serving from the current bucket.
// Failures to migrate or delete a stale bucket are logged, not returned.
func (w *Worker) Activate(ctx context.Context) error {
	w.mutex.Lock()
	installing, bucket := w.installing, w.bucket
	w.mutex.Unlock()
	if installing {
		return ErrInstallInProgress
	}
	if bucket == nil {
		return ErrNotInstalled
	}

	names, err := w.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	for _, name := range names {
		if name == w.version {
			continue
		}
		w.removeStale(ctx, name, bucket)
	}

	w.mutex.Lock()
	w.state = StateActive
	w.mutex.Unlock()
	w.log.Info().Msg("Activated")
	return nil
}

func (w *Worker) removeStale(ctx context.Context, name string, current storage.Bucket) {
	log := w.log.With().Str("bucket", name).Logger()
	if migrate, ok := w.migrations[name]; ok {
		if stale, err := w.storage.Open(ctx, name); err != nil {
			log.Warn().Err(err).Msg("Could not open stale bucket for migration")
		} else if err := migrate(ctx, stale, current); err != nil {
			log.Warn().Err(err).Msg("Migration failed")
		} else {
			log.Debug().Msg("Migrated stale bucket")
		}
	}
	if deleted, err := w.storage.Delete(ctx, name); err != nil {
		log.Warn().Err(err).Msg("Could not delete stale bucket")
	} else if deleted {
		log.Debug().Msg("Deleted stale bucket")
	}
}

// CarryOver returns a migration that copies the GET entries of the stale bucket
// whose path starts with prefix into the current bucket,
// unless the current bucket already has them.
func CarryOver(prefix string) MigrationFunc {
	return func(ctx context.Context, from, to storage.Bucket) error {
		keys, err := from.Keys(ctx)
		if err != nil {
			return err
		}
		for _, key := range keys {
			req, err := requestkey.Request(key)
			if err != nil || req.Method != http.MethodGet || !strings.HasPrefix(req.URL.Path, prefix) {
				continue
			}
			if _, found, err := to.Match(ctx, key); err != nil {
				return err
			} else if found {
				continue
			}
			entry, found, err := from.Match(ctx, key)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			if err := to.Put(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	}
}
