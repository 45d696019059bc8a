package main

import (
	"errors"
	"os"
	"time"

	offlinecache "github.com/always-cache/offline-cache"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Origin URL to proxy to.
	Origin string `yaml:"origin"`
	// Hostname of origin, if the origin URL is an IP address.
	Host            string        `yaml:"host"`
	Version         string        `yaml:"version"`
	Assets          []string      `yaml:"assets"`
	StaticPrefix    string        `yaml:"staticPrefix"`
	OfflineFallback string        `yaml:"offlineFallback"`
	Strategy        string        `yaml:"strategy"`
	FetchTimeout    time.Duration `yaml:"fetchTimeout"`
	// Previous versions whose static entries are copied to the new bucket on activation.
	CarryOver []string `yaml:"carryOver"`
}

var defaultConfig = Config{
	Version: "v1",
	Assets:  []string{"/"},
}

func getConfig(filename string) (Config, error) {
	config := defaultConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}

func (c Config) validate() error {
	if c.Origin == "" {
		return errors.New("Please specify origin")
	}
	if c.Version == "" {
		return errors.New("Please specify version")
	}
	return nil
}

// migrations copies static entries from each carry-over version on activation.
func (c Config) migrations() map[string]offlinecache.MigrationFunc {
	prefix := c.StaticPrefix
	if prefix == "" {
		prefix = offlinecache.DefaultStaticPrefix
	}
	migrations := make(map[string]offlinecache.MigrationFunc)
	for _, previous := range c.CarryOver {
		migrations[previous] = offlinecache.CarryOver(prefix)
	}
	return migrations
}
