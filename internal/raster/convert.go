package raster

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/joeblew999/plat-hotspots/internal/metadata"
)

// SourceSuffix marks the GeoTIFFs Convert picks up: <id>_web.tif.
const SourceSuffix = "_web.tif"

// MetadataFile is the bounds document written next to the PNGs.
const MetadataFile = "raster_metadata.json"

// Options configures Convert.
type Options struct {
	Dir    string // input directory
	OutDir string // defaults to Dir
	Ramp   *Ramp
	Scale  float64 // 0 picks the sample depth's full range
	Logger *slog.Logger
}

// Report lists per-layer outcomes of a Convert run.
type Report struct {
	Converted []string
	Failed    map[string]error
}

// Convert colorizes every <id>_web.tif in opts.Dir into <id>.png and writes
// the bounds of the converted layers to raster_metadata.json. A failing
// file is logged and skipped.
func Convert(ctx context.Context, opts Options) (*Report, error) {
	if opts.Ramp == nil {
		return nil, fmt.Errorf("color ramp is required")
	}
	if opts.OutDir == "" {
		opts.OutDir = opts.Dir
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	sources, err := filepath.Glob(filepath.Join(opts.Dir, "*"+SourceSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(sources)
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	opts.Logger.Info("converting rasters", "dir", opts.Dir, "files", len(sources))

	report := &Report{Failed: map[string]error{}}
	layers := map[string]metadata.LayerMetadata{}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		id := strings.TrimSuffix(filepath.Base(src), SourceSuffix)

		m, err := convertOne(src, id, opts)
		if err != nil {
			opts.Logger.Warn("raster conversion failed", "layer", id, "error", err)
			report.Failed[id] = err
			continue
		}
		layers[id] = m
		report.Converted = append(report.Converted, id)
		opts.Logger.Info("raster converted", "layer", id, "file", m.File)
	}

	out, err := os.Create(filepath.Join(opts.OutDir, MetadataFile))
	if err != nil {
		return report, fmt.Errorf("creating %s: %w", MetadataFile, err)
	}
	defer out.Close()
	if err := metadata.Encode(out, layers); err != nil {
		return report, fmt.Errorf("writing %s: %w", MetadataFile, err)
	}
	return report, nil
}

func convertOne(src, id string, opts Options) (metadata.LayerMetadata, error) {
	f, err := os.Open(src)
	if err != nil {
		return metadata.LayerMetadata{}, err
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return metadata.LayerMetadata{}, fmt.Errorf("decoding: %w", err)
	}
	b := img.Bounds()
	bound, err := ReadGeoTIFFBounds(f, b.Dx(), b.Dy())
	if err != nil {
		return metadata.LayerMetadata{}, err
	}
	var noData *float64
	if v, ok, err := ReadNoData(f); err != nil {
		return metadata.LayerMetadata{}, err
	} else if ok {
		noData = &v
	}

	name := id + ".png"
	out, err := os.Create(filepath.Join(opts.OutDir, name))
	if err != nil {
		return metadata.LayerMetadata{}, err
	}
	if err := png.Encode(out, Colorize(img, opts.Ramp, opts.Scale, noData)); err != nil {
		out.Close()
		return metadata.LayerMetadata{}, fmt.Errorf("encoding png: %w", err)
	}
	if err := out.Close(); err != nil {
		return metadata.LayerMetadata{}, err
	}

	return metadata.LayerMetadata{File: name, Bounds: metadata.FromBound(bound)}, nil
}
