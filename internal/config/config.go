// Package config holds the runtime configuration shared by all commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ujung/wetter/internal/dwd"
)

// Config is populated by the CLI from flags and WETTER_* environment
// variables and passed explicitly into constructors.
type Config struct {
	StationsFile  string `name:"stations" env:"WETTER_STATIONS" default:"data/stations.json" help:"Station metadata JSON file."`
	IndexFile     string `name:"index" env:"WETTER_INDEX" default:"data/index.txt" help:"Archive index, one file name per line."`
	PlacesFile    string `name:"places" env:"WETTER_PLACES" default:"data/plz.json" help:"Place suggestion list."`
	MonthDaysFile string `name:"monthdays" env:"WETTER_MONTHDAYS" help:"Month-day suggestion list. Generated when empty."`
	CacheDir      string `name:"cache-dir" env:"WETTER_CACHE_DIR" default:"data/cache" help:"Directory for cached station tables."`
	DBPath        string `name:"db" env:"WETTER_DB" default:"wetter.db" help:"SQLite database path."`

	Transport    string        `name:"transport" env:"WETTER_TRANSPORT" enum:"http,ftp" default:"http" help:"Archive transport (http or ftp)."`
	BaseURL      string        `name:"base-url" env:"WETTER_BASE_URL" default:"${base_url}" help:"HTTP base URL of the archive directory."`
	FTPHost      string        `name:"ftp-host" env:"WETTER_FTP_HOST" default:"${ftp_host}" help:"FTP host:port."`
	FTPDir       string        `name:"ftp-dir" env:"WETTER_FTP_DIR" default:"${ftp_dir}" help:"FTP archive directory."`
	FetchTimeout time.Duration `name:"fetch-timeout" env:"WETTER_FETCH_TIMEOUT" default:"60s" help:"Timeout per remote request."`

	MaxDistanceKm float64 `name:"distance" env:"WETTER_DISTANCE" default:"100" help:"Maximum station distance in km."`
	MaxStations   int     `name:"max-stations" env:"WETTER_MAX_STATIONS" default:"3" help:"Maximum number of stations per forecast."`

	FetchLogRetentionDays int `name:"fetch-log-retention" env:"WETTER_FETCH_LOG_RETENTION" default:"30" help:"Days of fetch history to keep; 0 keeps everything."`
}

// Vars are the interpolation values for the defaults above.
func Vars() map[string]string {
	return map[string]string{
		"base_url": dwd.DefaultBaseURL,
		"ftp_host": dwd.DefaultFTPHost,
		"ftp_dir":  dwd.DefaultFTPDir,
	}
}

// Validate checks that the required input files exist. Problems are
// reported as *dwd.ConfigError.
func (c *Config) Validate() error {
	required := []struct{ name, path string }{
		{"stations", c.StationsFile},
		{"index", c.IndexFile},
	}
	for _, r := range required {
		if r.path == "" {
			return &dwd.ConfigError{Path: r.name, Err: errors.New("not configured")}
		}
		if _, err := os.Stat(r.path); err != nil {
			return &dwd.ConfigError{Path: r.path, Err: err}
		}
	}
	if c.CacheDir == "" {
		return &dwd.ConfigError{Path: "cache-dir", Err: errors.New("not configured")}
	}
	if c.MaxStations < 0 {
		return &dwd.ConfigError{Path: "max-stations", Err: fmt.Errorf("must not be negative, got %d", c.MaxStations)}
	}
	if c.MaxDistanceKm < 0 {
		return &dwd.ConfigError{Path: "distance", Err: fmt.Errorf("must not be negative, got %g", c.MaxDistanceKm)}
	}
	if c.FetchLogRetentionDays < 0 {
		return &dwd.ConfigError{Path: "fetch-log-retention", Err: fmt.Errorf("must not be negative, got %d", c.FetchLogRetentionDays)}
	}
	return nil
}

// Fetcher builds the configured archive transport.
func (c *Config) Fetcher() dwd.Fetcher {
	if c.Transport == "ftp" {
		return dwd.NewFTPFetcher(c.FTPHost, c.FTPDir, c.FetchTimeout)
	}
	return dwd.NewHTTPFetcher(c.BaseURL, c.FetchTimeout)
}
