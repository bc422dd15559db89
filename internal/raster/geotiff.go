package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// TIFF and GeoTIFF identifiers.
const (
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113
	keyProjectedCSType = 3072
	epsgWebMercator    = 3857
	tiffTypeASCII      = 2
	tiffTypeShort      = 3
	tiffTypeLong       = 4
	tiffTypeDouble     = 12
)

// ErrNotGeoreferenced is returned when the georeferencing tags are missing.
var ErrNotGeoreferenced = errors.New("tiff is not georeferenced")

type ifdEntry struct {
	typ   uint16
	count uint32
	data  []byte
}

type ifd struct {
	order   binary.ByteOrder
	entries map[uint16]ifdEntry
}

var typeSize = map[uint16]uint32{
	1: 1, tiffTypeASCII: 1, tiffTypeShort: 2, tiffTypeLong: 4, 5: 8,
	6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, tiffTypeDouble: 8,
}

// readIFD reads the first image file directory of a classic TIFF.
func readIFD(r io.ReaderAt) (*ifd, error) {
	header := make([]byte, 8)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("reading tiff header: %w", err)
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a valid TIFF file")
	}
	if magic := order.Uint16(header[2:4]); magic != 42 {
		return nil, fmt.Errorf("unsupported tiff magic %d", magic)
	}

	off := int64(order.Uint32(header[4:8]))
	countBuf := make([]byte, 2)
	if _, err := r.ReadAt(countBuf, off); err != nil {
		return nil, fmt.Errorf("reading ifd: %w", err)
	}
	n := int(order.Uint16(countBuf))

	raw := make([]byte, n*12)
	if _, err := r.ReadAt(raw, off+2); err != nil {
		return nil, fmt.Errorf("reading ifd entries: %w", err)
	}

	d := &ifd{order: order, entries: make(map[uint16]ifdEntry, n)}
	for i := range n {
		e := raw[i*12 : i*12+12]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		count := order.Uint32(e[4:8])

		size, ok := typeSize[typ]
		if !ok {
			continue
		}
		total := size * count
		var data []byte
		if total <= 4 {
			data = append([]byte(nil), e[8:8+total]...)
		} else {
			data = make([]byte, total)
			if _, err := r.ReadAt(data, int64(order.Uint32(e[8:12]))); err != nil {
				return nil, fmt.Errorf("reading tag %d: %w", tag, err)
			}
		}
		d.entries[tag] = ifdEntry{typ: typ, count: count, data: data}
	}
	return d, nil
}

func (d *ifd) doubles(tag uint16) ([]float64, bool) {
	e, ok := d.entries[tag]
	if !ok || e.typ != tiffTypeDouble {
		return nil, false
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(d.order.Uint64(e.data[i*8:]))
	}
	return out, true
}

func (d *ifd) shorts(tag uint16) ([]uint16, bool) {
	e, ok := d.entries[tag]
	if !ok || e.typ != tiffTypeShort {
		return nil, false
	}
	out := make([]uint16, e.count)
	for i := range out {
		out[i] = d.order.Uint16(e.data[i*2:])
	}
	return out, true
}

func (d *ifd) ascii(tag uint16) (string, bool) {
	e, ok := d.entries[tag]
	if !ok || e.typ != tiffTypeASCII {
		return "", false
	}
	return strings.TrimRight(string(e.data), "\x00 "), true
}

// projectedCS returns the ProjectedCSTypeGeoKey, or 0.
func (d *ifd) projectedCS() uint16 {
	keys, ok := d.shorts(tagGeoKeyDirectory)
	if !ok || len(keys) < 4 {
		return 0
	}
	n := int(keys[3])
	for i := range n {
		k := keys[4+i*4:]
		if len(k) < 4 {
			break
		}
		// Location 0 means the value is stored inline.
		if k[0] == keyProjectedCSType && k[1] == 0 {
			return k[3]
		}
	}
	return 0
}

// ReadGeoTIFFBounds returns the lon/lat bound of a w×h raster from its
// ModelPixelScale and ModelTiepoint tags. Web Mercator rasters are
// projected back to WGS84.
func ReadGeoTIFFBounds(r io.ReaderAt, w, h int) (orb.Bound, error) {
	d, err := readIFD(r)
	if err != nil {
		return orb.Bound{}, err
	}

	scale, ok := d.doubles(tagModelPixelScale)
	if !ok || len(scale) < 2 {
		return orb.Bound{}, fmt.Errorf("%w: no ModelPixelScale", ErrNotGeoreferenced)
	}
	tie, ok := d.doubles(tagModelTiepoint)
	if !ok || len(tie) < 6 {
		return orb.Bound{}, fmt.Errorf("%w: no ModelTiepoint", ErrNotGeoreferenced)
	}

	// Tiepoint (i, j, k) -> (x, y, z); y grows north, rows grow south.
	west := tie[3] - tie[0]*scale[0]
	north := tie[4] + tie[1]*scale[1]
	east := west + float64(w)*scale[0]
	south := north - float64(h)*scale[1]

	upperLeft := orb.Point{west, north}
	lowerRight := orb.Point{east, south}
	if cs := d.projectedCS(); cs == epsgWebMercator {
		upperLeft = project.Mercator.ToWGS84(upperLeft)
		lowerRight = project.Mercator.ToWGS84(lowerRight)
	}

	b := orb.MultiPoint{upperLeft, lowerRight}.Bound()
	if b.Min.Lon() < -180 || b.Max.Lon() > 180 || b.Min.Lat() < -90 || b.Max.Lat() > 90 {
		return orb.Bound{}, fmt.Errorf("bounds %v outside lon/lat range", b)
	}
	return b, nil
}

// ReadNoData returns the GDAL nodata value, if the raster declares one.
func ReadNoData(r io.ReaderAt) (float64, bool, error) {
	d, err := readIFD(r)
	if err != nil {
		return 0, false, err
	}
	s, ok := d.ascii(tagGDALNoData)
	if !ok || s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("nodata %q: %w", s, err)
	}
	return v, true, nil
}
