package pointstorage

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/tysontate/gommap"

	"osmcache/internal/geocoord"
	"osmcache/internal/logger"
)

// RawFileWriter is the dense, on-disk point storage: record for id i
// lives at byte offset i*8. Ids that are never written leave holes in
// the (sparse) file that read back as zero, which GetPoint treats as
// absent.
type RawFileWriter struct {
	f         *os.File
	processed uint64
	coverage  *coverageSet
}

// NewRawFileWriter opens (creating if absent) a dense point file at
// path for writing.
func NewRawFileWriter(path string) (*RawFileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("pointstorage: open raw file %q: %w", path, err)
	}
	return &RawFileWriter{f: f, coverage: newCoverageSet()}, nil
}

// AddPoint seeks to id*8 and writes the encoded coordinate. An
// out-of-range lat/lon (one that overflows the fixed-point int32
// representation) is treated as an unrecoverable caller error; the
// caller is expected to escalate the returned error with
// logger.Critical.
func (w *RawFileWriter) AddPoint(id uint64, lat, lon float64) error {
	latI, err := geocoord.Encode(lat)
	if err != nil {
		return fmt.Errorf("pointstorage: encode lat for id %d: %w", id, err)
	}
	lonI, err := geocoord.Encode(lon)
	if err != nil {
		return fmt.Errorf("pointstorage: encode lon for id %d: %w", id, err)
	}

	var buf [latLonSize]byte
	binary.NativeEndian.PutUint32(buf[0:4], uint32(latI))
	binary.NativeEndian.PutUint32(buf[4:8], uint32(lonI))

	if _, err := w.f.WriteAt(buf[:], int64(id)*latLonSize); err != nil {
		return fmt.Errorf("pointstorage: write point for id %d: %w", id, err)
	}
	w.coverage.mark(id)
	w.processed++
	return nil
}

// Written reports whether id was ever passed to AddPoint on this
// writer, independent of whether the coordinate it stored happened to
// be the zero sentinel.
func (w *RawFileWriter) Written(id uint64) bool {
	return w.coverage.Written(id)
}

// ProcessedPoints returns the number of successful AddPoint calls.
func (w *RawFileWriter) ProcessedPoints() uint64 {
	return w.processed
}

// Close flushes and closes the underlying file.
func (w *RawFileWriter) Close() error {
	return w.f.Close()
}

// RawFileReader reads points back from a file written by RawFileWriter.
// It memory-maps the file where the platform supports it, falling back
// to plain ReadAt otherwise - a performance choice only, identical in
// behavior either way.
type RawFileReader struct {
	f    *os.File
	mm   gommap.MMap
	size int64
}

// NewRawFileReader opens an existing dense point file for reading.
func NewRawFileReader(path string) (*RawFileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pointstorage: open raw file %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pointstorage: stat raw file %q: %w", path, err)
	}

	r := &RawFileReader{f: f, size: info.Size()}
	if info.Size() > 0 {
		mm, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
		if err == nil {
			r.mm = mm
		}
		// A mapping failure just means GetPoint falls back to ReadAt;
		// it is not itself a fatal condition.
	}
	return r, nil
}

// GetPoint reads the record at id*8. Both fields zero is treated as
// absent: logged as an error (not fatal - the sentinel scheme cannot
// tell "absent" from "coincidentally zero") and GetPoint returns false.
func (r *RawFileReader) GetPoint(id uint64) (lat, lon float64, ok bool) {
	off := int64(id) * latLonSize
	if off+latLonSize > r.size {
		logger.Error("pointstorage: point %d absent (past end of file)", id)
		return 0, 0, false
	}

	var raw [latLonSize]byte
	if r.mm != nil {
		copy(raw[:], r.mm[off:off+latLonSize])
	} else {
		if _, err := r.f.ReadAt(raw[:], off); err != nil {
			logger.Error("pointstorage: read point %d: %v", id, err)
			return 0, 0, false
		}
	}

	latI := int32(binary.NativeEndian.Uint32(raw[0:4]))
	lonI := int32(binary.NativeEndian.Uint32(raw[4:8]))
	if latI == 0 && lonI == 0 {
		logger.Error("pointstorage: point %d absent (zero sentinel)", id)
		return 0, 0, false
	}

	return geocoord.Decode(latI), geocoord.Decode(lonI), true
}

// Close closes the underlying file. The mapping (if any) is read-only
// and lets the OS reclaim it on process exit, matching the index
// reader this is grounded on.
func (r *RawFileReader) Close() error {
	return r.f.Close()
}
