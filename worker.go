package offlinecache

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	requestkey "github.com/always-cache/offline-cache/pkg/request-key"
	"github.com/always-cache/offline-cache/storage"

	"github.com/rs/zerolog"
)

const DefaultStaticPrefix = "/static/"

type Strategy string

const (
	// Go to the network first, use the bucket only when the network fails.
	NetworkFirst Strategy = "network-first"
	// Use the bucket first, go to the network only on a miss.
	CacheFirst Strategy = "cache-first"
)

type State int

const (
	StateUninitialized State = iota
	StateInstalling
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInstalling:
		return "installing"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Config struct {
	// Storage for the versioned buckets.
	Storage storage.Storage
	// Network access, usually an *OriginFetcher.
	Fetcher Fetcher
	// Name of the current bucket.
	// Changing it invalidates everything stored under the previous version on activation.
	Version string
	// Paths stored in the bucket on install.
	Assets []string
	// Successful GET responses for URLs whose path contains this prefix are stored
	// while serving. Defaults to DefaultStaticPrefix.
	StaticPrefix string
	// Path of a stored response to serve when the network fails and the
	// request is not stored. Nothing is served if empty.
	OfflineFallback string
	// Defaults to NetworkFirst.
	Strategy Strategy
	// Cleanup actions for buckets of previous versions, keyed by version.
	// They run on activation, before the stale bucket is deleted.
	Migrations map[string]MigrationFunc
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

func (c Config) Validate() error {
	var errs []error
	if c.Storage == nil {
		errs = append(errs, errors.New("storage is required"))
	}
	if c.Fetcher == nil {
		errs = append(errs, errors.New("fetcher is required"))
	}
	if c.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	switch c.Strategy {
	case "", NetworkFirst, CacheFirst:
	default:
		errs = append(errs, fmt.Errorf("unknown strategy %q", c.Strategy))
	}
	if c.OfflineFallback != "" {
		if err := validatePath(c.OfflineFallback); err != nil {
			errs = append(errs, fmt.Errorf("offline fallback: %w", err))
		}
	}
	for version := range c.Migrations {
		if version == c.Version {
			errs = append(errs, fmt.Errorf("migration for current version %q", version))
		}
	}
	return errors.Join(errs...)
}

// validatePath accepts an origin-relative URL without fragment, like "/login?next=/".
func validatePath(path string) error {
	u, err := url.Parse(path)
	if err != nil {
		return err
	}
	if u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return fmt.Errorf("%q is not an absolute path", path)
	}
	if u.Fragment != "" || strings.Contains(path, "#") {
		return fmt.Errorf("%q has a fragment", path)
	}
	return nil
}

// Worker is the offline cache interceptor.
// It owns the bucket named by its version.
type Worker struct {
	storage         storage.Storage
	fetcher         Fetcher
	version         string
	assets          []string
	staticPrefix    string
	fallbackKey     string
	strategy        Strategy
	migrations      map[string]MigrationFunc
	log             zerolog.Logger
	now             func() time.Time

	// guards the fields below
	mutex      sync.Mutex
	state      State
	installing bool
	bucket     storage.Bucket

	// opportunistic writes in flight
	pending sync.WaitGroup
}

// New creates a worker in the uninitialized state.
// Install and Activate need to be called before it serves from its bucket.
func New(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	w := &Worker{
		storage:         config.Storage,
		fetcher:         config.Fetcher,
		version:         config.Version,
		assets:          append([]string(nil), config.Assets...),
		staticPrefix:    config.StaticPrefix,
		strategy:        config.Strategy,
		migrations:      config.Migrations,
		log:             logger.With().Str("version", config.Version).Logger(),
		now:             time.Now,
	}
	if w.staticPrefix == "" {
		w.staticPrefix = DefaultStaticPrefix
	}
	if w.strategy == "" {
		w.strategy = NetworkFirst
	}
	if config.OfflineFallback != "" {
		req, err := http.NewRequest(http.MethodGet, config.OfflineFallback, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid config: offline fallback: %w", err)
		}
		w.fallbackKey = requestkey.Key(req)
	}
	return w, nil
}

func (w *Worker) Version() string {
	return w.version
}

func (w *Worker) State() State {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.state
}

// Wait blocks until all pending writes to the bucket have settled.
func (w *Worker) Wait() {
	w.pending.Wait()
}

// activeBucket returns the bucket if the worker is active, nil otherwise.
func (w *Worker) activeBucket() storage.Bucket {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.state != StateActive {
		return nil
	}
	return w.bucket
}
