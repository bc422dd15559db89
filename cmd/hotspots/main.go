package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-hotspots/internal/catalog"
	"github.com/joeblew999/plat-hotspots/internal/config"
	"github.com/joeblew999/plat-hotspots/internal/raster"
	"github.com/joeblew999/plat-hotspots/internal/server"
)

// Options defines all CLI flags and env vars for the hotspots server.
// Flags: --host, --port, --data-dir, --db-dir, --web-dir, --config, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_DB_DIR, ...
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir  string `doc:"Directory holding raster PNGs and raster_metadata.json" default:".data"`
	DBDir    string `doc:"Directory for the DuckDB usage ledger (kept out of --data-dir)" default:".db"`
	WebDir   string `doc:"Path to web/ directory (embedded assets when missing)" default:"web"`
	Config   string `doc:"Path to YAML config file" default:"hotspots.yaml"`
	LogLevel string `doc:"Log level: debug, info, warn, error" default:"info"`
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func newServer(opts *Options) (*server.Server, error) {
	app, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	logger := newLogger(opts.LogLevel)
	slog.SetDefault(logger)

	return server.New(server.Config{
		Host:    opts.Host,
		Port:    fmt.Sprintf("%d", opts.Port),
		DataDir: opts.DataDir,
		DBDir:   opts.DBDir,
		WebDir:  opts.WebDir,
		App:     app,
		Logger:  logger,
	})
}

func mustServer(opts *Options) *server.Server {
	srv, err := newServer(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return srv
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var (
			srv    *server.Server
			httpd  *http.Server
			cancel context.CancelFunc
		)

		hooks.OnStart(func() {
			srv = mustServer(opts)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-hotspots server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Ledger:  %s\n", opts.DBDir)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			srv.Run(ctx)

			httpd = &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			if err := httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			if httpd == nil {
				return
			}
			ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			httpd.Shutdown(ctx)
			cancel()
			srv.Close()
		})
	})

	cli.Root().Use = "hotspots"
	cli.Root().Short = "Map viewer for health facility hotspot analyses"
	cli.Root().Version = "0.1.0"

	cli.Root().AddCommand(specCommand(), configCommand(), rasterCommand(), catalogCommand(), usageCommand())
	cli.Run()
}

// specCommand exports the OpenAPI spec.
func specCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(opts)
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			printDoc(srv.OpenAPI(), useYAML)
		}),
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// configCommand manages the YAML config file.
func configCommand() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage the YAML config file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to --config",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(opts.Config); err == nil && !force {
				fmt.Fprintf(os.Stderr, "Error: %s exists (use --force to overwrite)\n", opts.Config)
				os.Exit(1)
			}
			if err := config.Default().Save(opts.Config); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Config written to %s\n", opts.Config)
		}),
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")

	cfg.AddCommand(initCmd)
	return cfg
}

// rasterCommand colorizes <id>_web.tif files into overlay PNGs.
func rasterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raster",
		Short: "Convert hotspot GeoTIFFs into colored PNG overlays and raster_metadata.json",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			dir, _ := cmd.Flags().GetString("dir")
			out, _ := cmd.Flags().GetString("out")
			rampPath, _ := cmd.Flags().GetString("ramp")
			scale, _ := cmd.Flags().GetFloat64("scale")
			if dir == "" {
				dir = opts.DataDir
			}
			if out == "" {
				out = opts.DataDir
			}

			f, err := os.Open(rampPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening color ramp: %v\n", err)
				os.Exit(1)
			}
			ramp, err := raster.ParseColorRamp(f)
			f.Close()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing color ramp: %v\n", err)
				os.Exit(1)
			}

			report, err := raster.Convert(cmd.Context(), raster.Options{
				Dir:    dir,
				OutDir: out,
				Ramp:   ramp,
				Scale:  scale,
				Logger: newLogger(opts.LogLevel),
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error converting rasters: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("Converted %d layer(s) into %s\n", len(report.Converted), out)
			for _, id := range report.Converted {
				fmt.Printf("  ok     %s\n", id)
			}
			failed := make([]string, 0, len(report.Failed))
			for id := range report.Failed {
				failed = append(failed, id)
			}
			sort.Strings(failed)
			for _, id := range failed {
				fmt.Printf("  failed %s: %v\n", id, report.Failed[id])
			}
			fmt.Printf("Metadata: %s\n", filepath.Join(out, raster.MetadataFile))
			if len(failed) > 0 {
				os.Exit(1)
			}
		}),
	}
	cmd.Flags().String("dir", "", "Directory with <id>_web.tif files (defaults to --data-dir)")
	cmd.Flags().String("out", "", "Output directory (defaults to --data-dir)")
	cmd.Flags().String("ramp", "color_ramp.txt", "gdaldem color-relief ramp file")
	cmd.Flags().Float64("scale", 0, "Sample value mapped to 1.0 (0 uses the sample depth's range)")
	return cmd
}

// catalogCommand prints the layer catalog.
func catalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the hotspot layer catalog (JSON by default, --yaml for YAML)",
		Run: func(cmd *cobra.Command, args []string) {
			useYAML, _ := cmd.Flags().GetBool("yaml")
			printDoc(catalog.Default().All(), useYAML)
		},
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// usageCommand exports the DuckDB usage ledger.
func usageCommand() *cobra.Command {
	usage := &cobra.Command{
		Use:   "usage",
		Short: "Inspect the overlay usage ledger",
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Export the usage ledger as Parquet",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(opts)
			defer srv.Close()

			out, _ := cmd.Flags().GetString("out")
			if err := srv.Usage().Export(cmd.Context(), out); err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting usage: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Usage ledger written to %s\n", out)
		}),
	}
	export.Flags().StringP("out", "o", "usage.parquet", "Output Parquet file")

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Print per-layer usage counts",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := mustServer(opts)
			defer srv.Close()

			rows, err := srv.Usage().Summary(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading usage: %v\n", err)
				os.Exit(1)
			}
			printDoc(rows, false)
		}),
	}

	usage.AddCommand(export, summary)
	return usage
}

func printDoc(v any, useYAML bool) {
	var output []byte
	var err error
	if useYAML {
		output, err = yaml.Marshal(v)
	} else {
		output, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}
