// Package raster turns single-band GeoTIFF hotspot rasters into the colored
// PNG overlays and bounds document the viewer loads.
package raster

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Stop is one color-relief entry.
type Stop struct {
	Value float64
	Color color.NRGBA
}

// Ramp maps raster values to colors by linear interpolation between stops.
type Ramp struct {
	Stops  []Stop
	NoData color.NRGBA // used for nodata samples; transparent unless "nv" is given
}

// ParseColorRamp reads a gdaldem color-relief file:
//
//	# comment
//	0    252 187 161 0
//	0.2  252  78  42
//	nv   0 0 0 0
//
// Fields may be separated by whitespace, commas or colons. Alpha defaults to 255.
func ParseColorRamp(r io.Reader) (*Ramp, error) {
	ramp := &Ramp{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		if text == "" {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ',' || r == ':'
		})
		if len(fields) != 4 && len(fields) != 5 {
			return nil, fmt.Errorf("color ramp line %d: want 4 or 5 fields, got %d", line, len(fields))
		}

		c, err := parseColor(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("color ramp line %d: %w", line, err)
		}
		if strings.EqualFold(fields[0], "nv") {
			ramp.NoData = c
			continue
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("color ramp line %d: value %q: %w", line, fields[0], err)
		}
		ramp.Stops = append(ramp.Stops, Stop{Value: v, Color: c})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(ramp.Stops) == 0 {
		return nil, fmt.Errorf("color ramp has no stops")
	}
	sort.SliceStable(ramp.Stops, func(i, j int) bool {
		return ramp.Stops[i].Value < ramp.Stops[j].Value
	})
	return ramp, nil
}

func parseColor(fields []string) (color.NRGBA, error) {
	c := [4]uint8{0, 0, 0, 255}
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("component %q: %w", f, err)
		}
		c[i] = uint8(n)
	}
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}, nil
}

// At returns the interpolated color for v, clamped to the end stops.
func (r *Ramp) At(v float64) color.NRGBA {
	stops := r.Stops
	if v <= stops[0].Value {
		return stops[0].Color
	}
	last := stops[len(stops)-1]
	if v >= last.Value {
		return last.Color
	}

	i := sort.Search(len(stops), func(i int) bool { return stops[i].Value >= v })
	lo, hi := stops[i-1], stops[i]
	if hi.Value == lo.Value {
		return hi.Color
	}
	t := (v - lo.Value) / (hi.Value - lo.Value)
	return color.NRGBA{
		R: lerp(lo.Color.R, hi.Color.R, t),
		G: lerp(lo.Color.G, hi.Color.G, t),
		B: lerp(lo.Color.B, hi.Color.B, t),
		A: lerp(lo.Color.A, hi.Color.A, t),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}
