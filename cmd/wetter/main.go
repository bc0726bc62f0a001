package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/ujung/wetter/internal/api"
	"github.com/ujung/wetter/internal/climate"
	"github.com/ujung/wetter/internal/config"
	"github.com/ujung/wetter/internal/dwd"
	"github.com/ujung/wetter/internal/ingest"
	"github.com/ujung/wetter/internal/models"
	"github.com/ujung/wetter/internal/store"
	"github.com/ujung/wetter/internal/suggest"
)

type CLI struct {
	Config config.Config `embed:""`

	Serve     ServeCmd     `cmd:"" default:"1" help:"Run the HTTP API."`
	Forecast  ForecastCmd  `cmd:"" help:"Print the climatological forecast for one day as JSON."`
	Year      YearCmd      `cmd:"" help:"Print the mean and deviation for every day of the year as JSON."`
	SyncIndex SyncIndexCmd `cmd:"" name:"sync-index" help:"Refresh the archive index from the remote listing."`
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wetter"),
		kong.Description("Climatological day forecasts from DWD station history."),
		kong.UsageOnError(),
		kong.Vars(config.Vars()),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Config))
}

// app holds the components shared by all commands.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	store   *store.Store
	catalog *dwd.Catalog
	index   *dwd.ArchiveIndex
	fetcher dwd.Fetcher
	source  *dwd.Source
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	catalog, err := dwd.LoadCatalog(cfg.StationsFile)
	if err != nil {
		return nil, err
	}
	index, err := dwd.LoadArchiveIndex(cfg.IndexFile)
	if err != nil {
		return nil, err
	}

	st, db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.Println("database migrated")

	if err := st.SyncStations(catalog.Stations()); err != nil {
		db.Close()
		return nil, fmt.Errorf("mirror stations: %w", err)
	}
	log.Printf("stations mirrored (%d)", len(catalog.Stations()))

	if _, err := ingest.SeedIndex(index, st); err != nil {
		log.Printf("archive index not seeded: %v", err)
	}

	fetcher := cfg.Fetcher()
	source := dwd.NewSource(dwd.NewTableCache(cfg.CacheDir), index, fetcher, 2*cfg.FetchTimeout)
	source.SetRecorder(st)

	return &app{
		cfg:     cfg,
		db:      db,
		store:   st,
		catalog: catalog,
		index:   index,
		fetcher: fetcher,
		source:  source,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) refresher() (*ingest.IndexRefresher, error) {
	lister, ok := a.fetcher.(ingest.Lister)
	if !ok {
		return nil, fmt.Errorf("transport %s cannot list archives", a.fetcher.Transport())
	}
	r := ingest.NewIndexRefresher(lister, a.fetcher.Transport(), a.index)
	r.SetSnapshotStore(a.store)
	return r, nil
}

func (a *app) query(lat, lon float64, day string) climate.Query {
	return climate.Query{
		Point:         models.Point{Latitude: lat, Longitude: lon},
		MaxDistanceKm: a.cfg.MaxDistanceKm,
		MonthDay:      day,
		MaxStations:   a.cfg.MaxStations,
	}
}

type ServeCmd struct {
	Port            string        `env:"WETTER_PORT" default:"8080" help:"HTTP server port."`
	NoSchedule      bool          `help:"Disable the periodic index refresh."`
	RefreshInterval time.Duration `env:"WETTER_REFRESH_INTERVAL" default:"24h" help:"Archive index refresh interval."`
	WarmStations    []int         `env:"WETTER_WARM_STATIONS" help:"Station ids to pre-load into the cache on every refresh."`
}

func (c *ServeCmd) Run(cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	places, err := suggest.Load(cfg.PlacesFile)
	if err != nil {
		log.Printf("place suggestions disabled: %v", err)
		places = nil
	}
	monthDays := monthDaySuggestions()
	if cfg.MonthDaysFile != "" {
		if monthDays, err = suggest.Load(cfg.MonthDaysFile); err != nil {
			return err
		}
	}

	server := api.NewServer(a.catalog, a.source, a.store, c.Port)
	server.SetSuggestions(places, monthDays)
	server.SetDefaults(cfg.MaxDistanceKm, cfg.MaxStations)
	server.SetArchiveIndex(a.index)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !c.NoSchedule {
		refresher, err := a.refresher()
		if err != nil {
			return err
		}
		var warmer *ingest.CacheWarmer
		if len(c.WarmStations) > 0 {
			warmer = ingest.NewCacheWarmer(a.source, c.WarmStations)
		}
		scheduler := ingest.NewScheduler(refresher, warmer, c.RefreshInterval)
		scheduler.SetFetchLogRetention(a.store, cfg.FetchLogRetentionDays)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer scheduler.Stop()
	} else {
		log.Println("index refresh disabled (--no-schedule)")
	}

	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

type ForecastCmd struct {
	Lat    float64 `arg:"" help:"Latitude in decimal degrees."`
	Lon    float64 `arg:"" help:"Longitude in decimal degrees."`
	Day    string  `arg:"" help:"Target day as MMDD."`
	Window bool    `default:"true" negatable:"" help:"Aggregate over the day and its neighbours."`
}

func (c *ForecastCmd) Run(cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := climate.NewSession(context.Background(), a.catalog, a.source, a.query(c.Lat, c.Lon, c.Day))
	if err != nil {
		return err
	}
	day := c.Day
	if c.Window {
		day = ""
	}
	agg, err := sess.Aggregates(day)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"sessionId":  sess.ID,
		"history":    sess.History(),
		"aggregates": agg,
	})
}

type YearCmd struct {
	Lat float64 `arg:"" help:"Latitude in decimal degrees."`
	Lon float64 `arg:"" help:"Longitude in decimal degrees."`
}

func (c *YearCmd) Run(cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// The session day is irrelevant for the sweep.
	sess, err := climate.NewSession(context.Background(), a.catalog, a.source, a.query(c.Lat, c.Lon, "0101"))
	if err != nil {
		return err
	}
	return printJSON(sess.YearOverview())
}

type SyncIndexCmd struct {
	Timeout time.Duration `default:"5m" help:"Timeout for the listing."`
}

func (c *SyncIndexCmd) Run(cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.refresher()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	n, err := r.Refresh(ctx)
	if err != nil {
		return err
	}
	log.Printf("index updated: %d archives", n)
	return nil
}

// monthDaySuggestions lists every day of the year as "3. Mai" -> "0503".
func monthDaySuggestions() *suggest.List {
	var entries []suggest.Entry
	for mmdd := range climate.MonthDays() {
		month, day, _ := climate.ParseMonthDay(mmdd)
		data, _ := json.Marshal(mmdd)
		entries = append(entries, suggest.Entry{
			Value: fmt.Sprintf("%d. %s", day, climate.MonthName(month)),
			Data:  data,
		})
	}
	return suggest.New(entries)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
