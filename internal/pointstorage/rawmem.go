package pointstorage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"osmcache/internal/geocoord"
	"osmcache/internal/logger"
)

// MaxDenseID is the id-space size RawMemPointStorage reserves: the full
// uint32 range, which covered the entire OSM node-id space at the time
// this design was written. Requires roughly MaxDenseID*8 bytes of
// address space (~32 GiB at full size).
const MaxDenseID = 1<<32 - 1

// RawMemWriter is the in-RAM dense array variant: a single contiguous
// []LatLon the size of the id space, snapshotted to a file only on
// Close. Construct with NewRawMemWriter for the full id space, or
// NewRawMemWriterWithCapacity for a smaller capacity (tests, or a
// generator pass known to cover a bounded id range).
type RawMemWriter struct {
	path      string
	arr       []LatLon
	processed uint64
	coverage  *coverageSet
}

// NewRawMemWriter allocates an in-memory array sized for the entire
// dense id space and prepares to snapshot it to path on Close.
func NewRawMemWriter(path string) (*RawMemWriter, error) {
	return NewRawMemWriterWithCapacity(path, MaxDenseID)
}

// NewRawMemWriterWithCapacity is NewRawMemWriter with an explicit
// capacity, for callers (or tests) that know their id range is smaller
// than the full uint32 space and don't want to pay for it.
func NewRawMemWriterWithCapacity(path string, capacity uint64) (*RawMemWriter, error) {
	return &RawMemWriter{
		path:     path,
		arr:      make([]LatLon, capacity),
		coverage: newCoverageSet(),
	}, nil
}

// AddPoint stores the encoded coordinate directly at arr[id].
func (w *RawMemWriter) AddPoint(id uint64, lat, lon float64) error {
	if id >= uint64(len(w.arr)) {
		return fmt.Errorf("pointstorage: id %d exceeds raw mem storage capacity %d", id, len(w.arr))
	}
	latI, err := geocoord.Encode(lat)
	if err != nil {
		return fmt.Errorf("pointstorage: encode lat for id %d: %w", id, err)
	}
	lonI, err := geocoord.Encode(lon)
	if err != nil {
		return fmt.Errorf("pointstorage: encode lon for id %d: %w", id, err)
	}
	w.arr[id] = LatLon{Lat: latI, Lon: lonI}
	w.coverage.mark(id)
	w.processed++
	return nil
}

// Written reports whether id was ever passed to AddPoint.
func (w *RawMemWriter) Written(id uint64) bool {
	return w.coverage.Written(id)
}

// ProcessedPoints returns the number of successful AddPoint calls.
func (w *RawMemWriter) ProcessedPoints() uint64 {
	return w.processed
}

// Close writes the entire in-memory array to path.
func (w *RawMemWriter) Close() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("pointstorage: create raw mem snapshot %q: %w", w.path, err)
	}
	defer f.Close()

	buf := make([]byte, latLonSize*len(w.arr))
	for i, p := range w.arr {
		off := i * latLonSize
		binary.NativeEndian.PutUint32(buf[off:off+4], uint32(p.Lat))
		binary.NativeEndian.PutUint32(buf[off+4:off+8], uint32(p.Lon))
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("pointstorage: write raw mem snapshot %q: %w", w.path, err)
	}
	return nil
}

// RawMemReader loads an entire RawMem snapshot into an in-RAM array at
// construction time and answers lookups from it.
type RawMemReader struct {
	arr []LatLon
}

// NewRawMemReader reads the entire file at path into memory.
func NewRawMemReader(path string) (*RawMemReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pointstorage: open raw mem snapshot %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("pointstorage: stat raw mem snapshot %q: %w", path, err)
	}
	if info.Size()%latLonSize != 0 {
		return nil, fmt.Errorf("pointstorage: damaged raw mem snapshot %q: size %d not a multiple of %d", path, info.Size(), latLonSize)
	}

	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("pointstorage: read raw mem snapshot %q: %w", path, err)
	}

	n := len(buf) / latLonSize
	arr := make([]LatLon, n)
	for i := 0; i < n; i++ {
		off := i * latLonSize
		arr[i] = LatLon{
			Lat: int32(binary.NativeEndian.Uint32(buf[off : off+4])),
			Lon: int32(binary.NativeEndian.Uint32(buf[off+4 : off+8])),
		}
	}
	return &RawMemReader{arr: arr}, nil
}

// GetPoint loads arr[id] directly. Zero-sentinel means absent,
// identical in behavior to RawFileReader.
func (r *RawMemReader) GetPoint(id uint64) (lat, lon float64, ok bool) {
	if id >= uint64(len(r.arr)) {
		logger.Error("pointstorage: point %d absent (past end of array)", id)
		return 0, 0, false
	}
	p := r.arr[id]
	if p.IsAbsent() {
		logger.Error("pointstorage: point %d absent (zero sentinel)", id)
		return 0, 0, false
	}
	return geocoord.Decode(p.Lat), geocoord.Decode(p.Lon), true
}
