package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	offlinecache "github.com/always-cache/offline-cache"
	"github.com/always-cache/offline-cache/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag  string
	portFlag            int
	originFlag          string
	addrFlag            string
	hostFlag            string
	dbFilenameFlag      string
	versionTagFlag      string
	staticPrefixFlag    string
	offlineFallbackFlag string
	strategyFlag        string
	verbosityTraceFlag  bool
	logFilenameFlag     string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config, addr and host)")
	flag.StringVar(&addrFlag, "addr", "", "Origin IP address to proxy to")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "offline-cache.db", "Cache DB file name (use 'memory' for in-memory storage)")
	flag.StringVar(&versionTagFlag, "cache-version", "", "Cache version tag (overrides config)")
	flag.StringVar(&staticPrefixFlag, "static", "", "Static asset path prefix (overrides config)")
	flag.StringVar(&offlineFallbackFlag, "fallback", "", "Path served when offline and not cached (overrides config)")
	flag.StringVar(&strategyFlag, "strategy", "", "network-first or cache-first (overrides config)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("binary", version).Logger()

	config := defaultConfig
	if configFilenameFlag != "" {
		var err error
		if config, err = getConfig(configFilenameFlag); err != nil {
			log.Fatal().Err(err).Str("file", configFilenameFlag).Msg("Could not read config")
		}
	}
	applyFlags(&config)
	if err := config.validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse url")
	}

	var store storage.Storage
	if dbFilenameFlag == "memory" {
		store = storage.NewMemStorage()
	} else {
		sqlite, err := storage.NewSQLiteStorage(dbFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open cache db")
		}
		defer sqlite.Close()
		store = sqlite
	}

	worker, err := offlinecache.New(offlinecache.Config{
		Storage:         store,
		Fetcher:         offlinecache.NewOriginFetcher(*originURL, config.Host, config.FetchTimeout),
		Version:         config.Version,
		Assets:          config.Assets,
		StaticPrefix:    config.StaticPrefix,
		OfflineFallback: config.OfflineFallback,
		Strategy:        offlinecache.Strategy(config.Strategy),
		Migrations:      config.migrations(),
		Logger:          &log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create worker")
	}

	startWorker(context.Background(), worker, log.Logger)

	log.Info().Msgf("Proxying port %v to %s (with hostname '%s')", portFlag, originURL.String(), config.Host)
	err = http.ListenAndServe(fmt.Sprintf(":%d", portFlag), newRouter(worker, log.Logger))
	worker.Wait()
	if err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// applyFlags overrides config file values with the flags that were set.
func applyFlags(config *Config) {
	if originFlag != "" {
		config.Origin = originFlag
	} else if addrFlag != "" {
		config.Origin = "https://" + addrFlag
		config.Host = hostFlag
	}
	if versionTagFlag != "" {
		config.Version = versionTagFlag
	}
	if staticPrefixFlag != "" {
		config.StaticPrefix = staticPrefixFlag
	}
	if offlineFallbackFlag != "" {
		config.OfflineFallback = offlineFallbackFlag
	}
	if strategyFlag != "" {
		config.Strategy = strategyFlag
	}
}

// startWorker installs and activates the worker.
// A failed install is logged and can be retried with the install endpoint;
// until then requests pass through to the origin.
func startWorker(ctx context.Context, worker *offlinecache.Worker, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := worker.Install(ctx); err != nil {
		logger.Error().Err(err).Msgf("Install failed, retry with POST %s/install", controlPrefix)
		return
	}
	if err := worker.Activate(ctx); err != nil {
		logger.Error().Err(err).Msg("Activation failed")
	}
}
