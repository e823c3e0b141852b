package core

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/go-co-op/gocron"
	"github.com/vrsandeep/mango-pages/internal/assets"
	"github.com/vrsandeep/mango-pages/internal/config"
	"github.com/vrsandeep/mango-pages/internal/db"
	"github.com/vrsandeep/mango-pages/internal/downloader/providers"
	"github.com/vrsandeep/mango-pages/internal/downloader/providers/ehentai"
	"github.com/vrsandeep/mango-pages/internal/downloader/providers/hitomi"
	"github.com/vrsandeep/mango-pages/internal/downloader/providers/wnacg"
	"github.com/vrsandeep/mango-pages/internal/fetcher"
	"github.com/vrsandeep/mango-pages/internal/httpclient"
	"github.com/vrsandeep/mango-pages/internal/jobs"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/pagestore"
	"github.com/vrsandeep/mango-pages/internal/store"
	"github.com/vrsandeep/mango-pages/internal/websocket"
)

// App holds the core components of the application that are shared
// between the server and the CLI.
type App struct {
	config     *config.Config
	db         *sql.DB
	store      *store.Store
	pages      *pagestore.Store
	client     *http.Client
	registry   *providers.Registry
	fetchers   *fetcher.Manager
	wsHub      *websocket.Hub
	jobManager *jobs.JobManager
	scheduler  *gocron.Scheduler
}

var _ jobs.JobContext = (*App)(nil)

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running migrations.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewFromConfig(cfg)
}

// NewFromConfig builds an App with the providers of every configured source.
func NewFromConfig(cfg *config.Config) (*App, error) {
	client, err := httpclient.New(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	return Build(cfg, client, DefaultRegistry(cfg, client))
}

// DefaultRegistry registers the E, Wn and Hi providers. Ru has no provider.
func DefaultRegistry(cfg *config.Config, client *http.Client) *providers.Registry {
	registry := providers.NewRegistry()
	registry.Register(ehentai.New(client, cfg.Sources.E.BaseURL))
	registry.Register(wnacg.New(client, cfg.Sources.Wn.BaseURL, cfg.Sources.Wn.Slots, cfg.Sources.Wn.Cooldown))
	registry.Register(hitomi.New(client, cfg.Sources.Hi.Enabled, cfg.Sources.Hi.Domain))
	return registry
}

// Build wires an App around an explicit client and provider registry.
func Build(cfg *config.Config, client *http.Client, registry *providers.Registry) (*App, error) {
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app := &App{
		config:   cfg,
		db:       database,
		store:    store.New(database),
		pages:    pagestore.New(cfg.Storage.Path),
		client:   client,
		registry: registry,
		wsHub:    websocket.NewHub(),
	}
	go app.wsHub.Run()

	app.fetchers = fetcher.NewManager(fetcher.ManagerOptions{
		Items:    app.store,
		Pages:    app.pages,
		Registry: registry,
		Client:   client,
		Checker:  httpclient.NewChecker(cfg.Network),
		Observer: func(update models.ProgressUpdate) {
			app.wsHub.BroadcastJSON(update)
		},
		Preload: fetcher.PreloadOptions{
			Offsets: cfg.Preload.Offsets,
			Workers: cfg.Preload.Workers,
			Queue:   cfg.Preload.Queue,
		},
		ScratchID: cfg.Storage.ScratchID,
	})

	app.jobManager = jobs.NewManager(app)
	jobs.RegisterDefaultJobs(app.jobManager)

	log.Println("Core application setup complete.")
	return app, nil
}

// StartScheduler starts the periodic maintenance jobs.
func (a *App) StartScheduler() {
	if a.scheduler == nil {
		a.scheduler = jobs.StartJobs(a)
	}
}

func (a *App) Config() *config.Config        { return a.config }
func (a *App) DB() *sql.DB                   { return a.db }
func (a *App) Store() *store.Store           { return a.store }
func (a *App) Pages() *pagestore.Store       { return a.pages }
func (a *App) HTTPClient() *http.Client      { return a.client }
func (a *App) Registry() *providers.Registry { return a.registry }
func (a *App) Fetchers() *fetcher.Manager    { return a.fetchers }
func (a *App) WsHub() *websocket.Hub         { return a.wsHub }
func (a *App) JobManager() *jobs.JobManager  { return a.jobManager }

// Close stops background work, closes every open fetcher and then the database.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.fetchers != nil {
		if err := a.fetchers.CloseAll(); err != nil {
			log.Printf("Error closing fetchers: %v", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
