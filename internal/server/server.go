// Package server wires the hotspots HTTP server: the Huma REST API, the
// Datastar viewer endpoints, the map page and the raster data files.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/go-chi/cors"

	"github.com/joeblew999/plat-hotspots/internal/api"
	"github.com/joeblew999/plat-hotspots/internal/api/viewer"
	"github.com/joeblew999/plat-hotspots/internal/basemap"
	"github.com/joeblew999/plat-hotspots/internal/catalog"
	"github.com/joeblew999/plat-hotspots/internal/config"
	"github.com/joeblew999/plat-hotspots/internal/db"
	"github.com/joeblew999/plat-hotspots/internal/humastar"
	"github.com/joeblew999/plat-hotspots/internal/legend"
	"github.com/joeblew999/plat-hotspots/internal/metadata"
	"github.com/joeblew999/plat-hotspots/internal/overlay"
	"github.com/joeblew999/plat-hotspots/internal/service"
	"github.com/joeblew999/plat-hotspots/internal/templates"
	"github.com/joeblew999/plat-hotspots/internal/welcome"
	"github.com/joeblew999/plat-hotspots/web"
)

// Title is the page and OpenAPI title.
const Title = "Hotspots de Salud en Puerto Rico"

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string // Raster PNGs and the metadata document, served under /data/
	DBDir   string // DuckDB ledger directory, never served; empty keeps the ledger in memory
	WebDir  string // Optional on-disk web/ directory; the embedded copy is used otherwise
	App     *config.Config
	Logger  *slog.Logger
}

// Server is the hotspots HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	renderer *templates.Renderer
	web      fs.FS
	live     bool // web assets read from disk; templates reload per page view
	links    *humastar.Links
}

// New creates a new hotspots server.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		cfg.App = config.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger

	s := &Server{config: cfg, mux: http.NewServeMux()}

	s.web = web.FS
	if cfg.WebDir != "" {
		if fi, err := os.Stat(cfg.WebDir); err == nil && fi.IsDir() {
			s.web = os.DirFS(cfg.WebDir)
			s.live = true
			logger.Info("serving web assets from disk", "dir", cfg.WebDir)
		}
	}
	renderer, err := templates.New(s.web)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	s.renderer = renderer

	humaConfig := huma.DefaultConfig(Title+" API", api.Version)
	humaConfig.Info.Description = "Health facility hotspot layers, base maps and the Datastar endpoints driving the map viewer."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	// Links are derived after registration; the transformer reads them lazily.
	humaConfig.Transformers = append(humaConfig.Transformers, func(ctx huma.Context, status string, v any) (any, error) {
		return s.links.Transformer()(ctx, status, v)
	})
	s.humaAPI = humago.New(s.mux, humaConfig)

	fetcher := newFetcher(cfg.DataDir, cfg.App.Metadata)
	cat := catalog.Default()

	if cfg.App.Usage.Enabled {
		conn, err := db.Open(db.Config{DataDir: cfg.DBDir, DBName: "hotspots", Logger: logger})
		if err != nil {
			logger.Warn("usage ledger disabled", "error", err)
		} else {
			s.db = conn
		}
	}
	usage, err := service.NewUsageService(s.db, logger)
	if err != nil {
		logger.Warn("usage ledger disabled", "error", err)
		usage, _ = service.NewUsageService(nil, logger)
	}

	s.services = &api.Services{
		Catalog:  cat,
		Metadata: fetcher,
		Sessions: service.NewSessionService(service.SessionOptions{
			Catalog: cat,
			Fetcher: fetcher,
			TTL:     cfg.App.Session.TTL,
			Logger:  logger,
		}),
		Usage:  usage,
		Logger: logger,
	}

	s.routes()
	return s, nil
}

func newFetcher(dataDir string, cfg config.MetadataConfig) metadata.Fetcher {
	if cfg.URL != "" {
		return metadata.HTTPFetcher{URL: cfg.URL, Client: &http.Client{Timeout: 30 * time.Second}}
	}
	path := cfg.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}
	return metadata.FileFetcher{Path: path}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Sessions returns the viewer session service.
func (s *Server) Sessions() *service.SessionService {
	return s.services.Sessions
}

// Usage returns the usage ledger.
func (s *Server) Usage() *service.UsageService {
	return s.services.Usage
}

// Run starts the background workers: the usage recorder and the idle
// session sweeper. They stop when ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	if s.services.Usage.Available() {
		go s.services.Usage.Run(ctx, s.services.Sessions.Bus())
	}
	go s.sweep(ctx, s.config.App.Session.TTL/4)
}

func (s *Server) sweep(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.services.Sessions.Sweep()
		}
	}
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.services.Sessions, s.services.Usage).RegisterRoutes(s.humaAPI)

	// Register viewer SSE routes using Huma + Datastar SDK
	viewer.NewHandler(s.services.Sessions, s.renderer).RegisterRoutes(s.humaAPI)

	s.links = humastar.AutoLinks(s.humaAPI, viewer.Tag)

	// Raster images are fetched cross-origin by embedding pages.
	dataFiles := http.StripPrefix("/data/", s.overlayFiles())
	s.mux.Handle("/data/", cors.Handler(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowCredentials: true,
		MaxAge:           300,
	})(dataFiles))

	if static, err := fs.Sub(s.web, "static"); err == nil {
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	}

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/{$}", s.handleViewer)
}

// overlayFiles serves overlay PNGs and the metadata document from the data
// directory. Anything else, directories included, is a 404.
func (s *Server) overlayFiles() http.Handler {
	dir := s.config.DataDir
	files := http.FileServer(http.Dir(dir))
	metadataFile := ""
	if f := s.config.App.Metadata.File; f != "" && !filepath.IsAbs(f) {
		metadataFile = path.Clean("/" + filepath.ToSlash(f))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if !servable(name, metadataFile) {
			http.NotFound(w, r)
			return
		}
		fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil || fi.IsDir() {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func servable(name, metadataFile string) bool {
	if strings.EqualFold(path.Ext(name), ".png") {
		return true
	}
	return metadataFile != "" && name == metadataFile
}

// pageData is the data for templates/viewer.html.
type pageData struct {
	Title       string
	Signals     string
	StorageKey  string
	MapConfig   string
	Legend      api.LegendBody
	Placeholder humastar.SelectOptionData
	Basemaps    []basemap.Layer
}

// mapConfig is read by static/viewer.js from the map element.
type mapConfig struct {
	Center   []float64       `json:"center"`
	Zoom     int             `json:"zoom"`
	Basemaps []basemap.Layer `json:"basemaps"`
	Basemap  basemap.Kind    `json:"basemap"`
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	signals, err := json.Marshal(initialSignals(r.URL.Query().Get("layer")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	mc, err := json.Marshal(mapConfig{
		Center:   s.config.App.Map.Center,
		Zoom:     s.config.App.Map.Zoom,
		Basemaps: basemap.All(),
		Basemap:  basemap.Default,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := pageData{
		Title:       Title,
		Signals:     string(signals),
		StorageKey:  welcome.StorageKey,
		MapConfig:   string(mc),
		Legend:      api.LegendBody{Title: legend.Title, Buckets: legend.Buckets()},
		Placeholder: humastar.SelectOptionData{Label: overlay.SelectorPlaceholder},
		Basemaps:    basemap.All(),
	}

	if s.live {
		if err := s.renderer.Reload(s.web); err != nil {
			s.config.Logger.Warn("template reload failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Execute(w, "viewer.html", data); err != nil {
		s.config.Logger.Error("rendering viewer", "error", err)
	}
}

// initialSignals seeds the page's Datastar store. A layer query parameter
// asks the start handler to open that layer.
func initialSignals(layer string) map[string]any {
	return map[string]any{
		viewer.SigSession:        "",
		viewer.SigLayer:          layer,
		viewer.SigOpacity:        overlay.DefaultOpacityPercent,
		viewer.SigOpacityLabel:   "",
		viewer.SigBaseLayer:      string(basemap.Default),
		viewer.SigOverlayGen:     0,
		viewer.SigOverlayOutcome: "",
		viewer.SigDontShowAgain:  false,
		viewer.SigWelcome:        false,
		viewer.SigLoading:        true,
		viewer.SigToggleLabel:    overlay.LabelHide,
	}
}
