package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/joeblew999/plat-hotspots/internal/metadata"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type tiffTag struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shortTag(tag uint16, vals ...uint16) tiffTag {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return tiffTag{tag, tiffTypeShort, uint32(len(vals)), b}
}

func longTag(tag uint16, v uint32) tiffTag {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return tiffTag{tag, tiffTypeLong, 1, b}
}

func doubleTag(tag uint16, vals ...float64) tiffTag {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return tiffTag{tag, tiffTypeDouble, uint32(len(vals)), b}
}

func asciiTag(tag uint16, s string) tiffTag {
	b := append([]byte(s), 0)
	return tiffTag{tag, tiffTypeASCII, uint32(len(b)), b}
}

// buildTIFF assembles an uncompressed little-endian 8-bit grayscale TIFF.
func buildTIFF(w, h int, pix []byte, extra ...tiffTag) []byte {
	pixOff := uint32(8)
	ifdOff := pixOff + uint32(len(pix))
	if ifdOff%2 != 0 {
		ifdOff++
	}

	tags := []tiffTag{
		shortTag(256, uint16(w)),
		shortTag(257, uint16(h)),
		shortTag(258, 8),
		shortTag(259, 1),
		shortTag(262, 1),
		longTag(273, pixOff),
		shortTag(277, 1),
		shortTag(278, uint16(h)),
		longTag(279, uint32(len(pix))),
	}
	tags = append(tags, extra...)
	sort.Slice(tags, func(i, j int) bool { return tags[i].tag < tags[j].tag })

	dataOff := ifdOff + 2 + uint32(len(tags))*12 + 4
	var ifd, data bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&ifd, le, uint16(len(tags)))
	for _, tg := range tags {
		binary.Write(&ifd, le, tg.tag)
		binary.Write(&ifd, le, tg.typ)
		binary.Write(&ifd, le, tg.count)
		if len(tg.data) <= 4 {
			v := make([]byte, 4)
			copy(v, tg.data)
			ifd.Write(v)
			continue
		}
		binary.Write(&ifd, le, dataOff+uint32(data.Len()))
		data.Write(tg.data)
		if data.Len()%2 != 0 {
			data.WriteByte(0)
		}
	}
	binary.Write(&ifd, le, uint32(0))

	var out bytes.Buffer
	out.WriteString("II")
	binary.Write(&out, le, uint16(42))
	binary.Write(&out, le, ifdOff)
	out.Write(pix)
	for uint32(out.Len()) < ifdOff {
		out.WriteByte(0)
	}
	out.Write(ifd.Bytes())
	out.Write(data.Bytes())
	return out.Bytes()
}

func geoTags(scaleX, scaleY, west, north float64) []tiffTag {
	return []tiffTag{
		doubleTag(tagModelPixelScale, scaleX, scaleY, 0),
		doubleTag(tagModelTiepoint, 0, 0, 0, west, north, 0),
	}
}

const testRamp = `# value R G B A
1    0 0 255
0,255,0,0
nv 0 0 0 0
`

func TestParseColorRamp(t *testing.T) {
	r, err := ParseColorRamp(strings.NewReader(testRamp))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Stops) != 2 {
		t.Fatalf("stops=%d, want 2", len(r.Stops))
	}
	if r.Stops[0].Value != 0 || r.Stops[1].Value != 1 {
		t.Errorf("stops not sorted: %+v", r.Stops)
	}
	if r.Stops[1].Color.A != 255 {
		t.Errorf("alpha should default to 255, got %d", r.Stops[1].Color.A)
	}
	if r.NoData != (color.NRGBA{}) {
		t.Errorf("nodata=%v", r.NoData)
	}
}

func TestParseColorRampErrors(t *testing.T) {
	cases := map[string]string{
		"empty":       "# nothing\n",
		"short line":  "0 1 2\n",
		"bad value":   "x 1 2 3\n",
		"bad channel": "0 1 2 300\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseColorRamp(strings.NewReader(text)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRampAt(t *testing.T) {
	r, _ := ParseColorRamp(strings.NewReader(testRamp))
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}

	if got := r.At(-5); got != red {
		t.Errorf("below range: %v", got)
	}
	if got := r.At(5); got != blue {
		t.Errorf("above range: %v", got)
	}
	if got := r.At(0.5); got != (color.NRGBA{128, 0, 128, 255}) {
		t.Errorf("midpoint: %v", got)
	}
}

func TestColorize(t *testing.T) {
	r, _ := ParseColorRamp(strings.NewReader(testRamp))
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.Pix = []byte{0, 255, 10}
	noData := 10.0

	out := Colorize(img, r, 0, &noData)
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("pixel 0: %v", got)
	}
	if got := out.NRGBAAt(1, 0); got != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("pixel 1: %v", got)
	}
	if got := out.NRGBAAt(2, 0); got.A != 0 {
		t.Errorf("nodata pixel should be transparent: %v", got)
	}
}

func TestColorizeGray16Scale(t *testing.T) {
	r, _ := ParseColorRamp(strings.NewReader(testRamp))
	img := image.NewGray16(image.Rect(0, 0, 1, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 100})

	out := Colorize(img, r, 100, nil)
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("value 100/100 should hit the top stop: %v", got)
	}
}

func TestReadGeoTIFFBounds(t *testing.T) {
	data := buildTIFF(4, 2, make([]byte, 8), geoTags(0.5, 0.25, -67, 18.5)...)

	b, err := ReadGeoTIFFBounds(bytes.NewReader(data), 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if b.Min.Lon() != -67 || b.Max.Lon() != -65 || b.Min.Lat() != 18 || b.Max.Lat() != 18.5 {
		t.Errorf("bound=%v", b)
	}
}

func TestReadGeoTIFFBoundsWebMercator(t *testing.T) {
	tags := append(geoTags(1000, 1000, 0, 0),
		shortTag(tagGeoKeyDirectory, 1, 1, 0, 1, keyProjectedCSType, 0, 1, epsgWebMercator))
	data := buildTIFF(2, 2, make([]byte, 4), tags...)

	b, err := ReadGeoTIFFBounds(bytes.NewReader(data), 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	wantLon := 2000 / 6378137.0 * 180 / math.Pi
	if math.Abs(b.Max.Lon()-wantLon) > 1e-9 || math.Abs(b.Min.Lon()) > 1e-9 {
		t.Errorf("lon range %v..%v, want 0..%v", b.Min.Lon(), b.Max.Lon(), wantLon)
	}
	if math.Abs(b.Max.Lat()) > 1e-9 || b.Min.Lat() >= 0 {
		t.Errorf("lat range %v..%v", b.Min.Lat(), b.Max.Lat())
	}
}

func TestReadGeoTIFFNotGeoreferenced(t *testing.T) {
	data := buildTIFF(1, 1, []byte{0})
	if _, err := ReadGeoTIFFBounds(bytes.NewReader(data), 1, 1); !errors.Is(err, ErrNotGeoreferenced) {
		t.Fatalf("err=%v", err)
	}
	if _, err := ReadGeoTIFFBounds(bytes.NewReader([]byte("not a tiff at all")), 1, 1); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestReadNoData(t *testing.T) {
	data := buildTIFF(1, 1, []byte{0}, asciiTag(tagGDALNoData, "255"))
	v, ok, err := ReadNoData(bytes.NewReader(data))
	if err != nil || !ok || v != 255 {
		t.Fatalf("nodata=%v ok=%v err=%v", v, ok, err)
	}
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	good := buildTIFF(4, 2, []byte{0, 64, 128, 255, 255, 128, 64, 0}, geoTags(0.5, 0.25, -67, 18.5)...)
	if err := os.WriteFile(filepath.Join(dir, "CDTs_web.tif"), good, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Broken_web.tif"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.tif"), good, 0644); err != nil {
		t.Fatal(err)
	}

	ramp, _ := ParseColorRamp(strings.NewReader(testRamp))
	report, err := Convert(context.Background(), Options{Dir: dir, Ramp: ramp, Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Converted) != 1 || report.Converted[0] != "CDTs" {
		t.Errorf("converted=%v", report.Converted)
	}
	if _, ok := report.Failed["Broken"]; !ok || len(report.Failed) != 1 {
		t.Errorf("failed=%v", report.Failed)
	}

	f, err := os.Open(filepath.Join(dir, "CDTs.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
		t.Errorf("png size=%v", img.Bounds())
	}

	mf, err := os.Open(filepath.Join(dir, MetadataFile))
	if err != nil {
		t.Fatal(err)
	}
	defer mf.Close()
	store, err := metadata.Parse(mf)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := store.Lookup("CDTs")
	if !ok {
		t.Fatal("CDTs missing from metadata")
	}
	want := metadata.Bounds{{18, -67}, {18.5, -65}}
	if m.File != "CDTs.png" || m.Bounds != want {
		t.Errorf("metadata=%+v", m)
	}
	if store.Len() != 1 {
		t.Errorf("metadata has %d layers", store.Len())
	}
}

func TestConvertRequiresRamp(t *testing.T) {
	if _, err := Convert(context.Background(), Options{Dir: t.TempDir()}); err == nil {
		t.Fatal("expected error")
	}
}
