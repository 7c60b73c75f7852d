package pointstorage

import (
	"math"
	"path/filepath"
	"testing"

	"osmcache/internal/geocoord"
)

const coordTolerance = 1e-7 + 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= coordTolerance
}

// S4: dense on-disk point storage round-trips Moscow's coordinates and
// reports a genuinely absent id as not found.
func TestRawFilePointStorage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.raw")

	w, err := NewRawFileWriter(path)
	if err != nil {
		t.Fatalf("NewRawFileWriter: %v", err)
	}
	if err := w.AddPoint(5, 55.7558, 37.6173); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	if w.ProcessedPoints() != 1 {
		t.Fatalf("ProcessedPoints = %d, want 1", w.ProcessedPoints())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewRawFileReader(path)
	if err != nil {
		t.Fatalf("NewRawFileReader: %v", err)
	}
	defer r.Close()

	lat, lon, ok := r.GetPoint(5)
	if !ok {
		t.Fatalf("GetPoint(5) not found")
	}
	if !approxEqual(lat, 55.7558) || !approxEqual(lon, 37.6173) {
		t.Fatalf("GetPoint(5) = (%v, %v), want (55.7558, 37.6173)", lat, lon)
	}

	if _, _, ok := r.GetPoint(6); ok {
		t.Fatalf("GetPoint(6) should be absent")
	}
}

// S5: sparse point storage round-trips two ids beyond the 32-bit range
// the dense storages cover, and a lookup miss is silent (no ERROR-level log, unlike the
// dense variants) - this test only checks the return value since the
// "no logging" half of the contract is a log-output property, not
// something a boolean return exposes.
func TestMapFilePointStorage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points")

	const base = 10_000_000_000
	w, err := NewMapFileWriter(path)
	if err != nil {
		t.Fatalf("NewMapFileWriter: %v", err)
	}
	if err := w.AddPoint(base, 1.0, 2.0); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	if err := w.AddPoint(base+1, 3.0, 4.0); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewMapFileReader(path)
	if err != nil {
		t.Fatalf("NewMapFileReader: %v", err)
	}

	lat, lon, ok := r.GetPoint(base)
	if !ok || !approxEqual(lat, 1.0) || !approxEqual(lon, 2.0) {
		t.Fatalf("GetPoint(base) = (%v, %v, %v), want (1, 2, true)", lat, lon, ok)
	}
	lat, lon, ok = r.GetPoint(base + 1)
	if !ok || !approxEqual(lat, 3.0) || !approxEqual(lon, 4.0) {
		t.Fatalf("GetPoint(base+1) = (%v, %v, %v), want (3, 4, true)", lat, lon, ok)
	}
	if _, _, ok := r.GetPoint(base + 2); ok {
		t.Fatalf("GetPoint(base+2) should be absent")
	}
}

// S6: an out-of-range coordinate overflows the int32 fixed-point
// representation and must be rejected rather than silently wrapped.
func TestAddPointOverflow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.raw")

	w, err := NewRawFileWriter(path)
	if err != nil {
		t.Fatalf("NewRawFileWriter: %v", err)
	}
	defer w.Close()

	if err := w.AddPoint(0, 300.0, 0.0); err == nil {
		t.Fatal("AddPoint with lat=300 should have failed")
	}
}

func TestRawMemPointStorage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.mem")

	const capacity = 1000
	w, err := NewRawMemWriterWithCapacity(path, capacity)
	if err != nil {
		t.Fatalf("NewRawMemWriterWithCapacity: %v", err)
	}
	if err := w.AddPoint(42, -33.8688, 151.2093); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	if !w.Written(42) {
		t.Fatal("Written(42) should be true")
	}
	if w.Written(43) {
		t.Fatal("Written(43) should be false")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewRawMemReader(path)
	if err != nil {
		t.Fatalf("NewRawMemReader: %v", err)
	}

	lat, lon, ok := r.GetPoint(42)
	if !ok || !approxEqual(lat, -33.8688) || !approxEqual(lon, 151.2093) {
		t.Fatalf("GetPoint(42) = (%v, %v, %v), want (-33.8688, 151.2093, true)", lat, lon, ok)
	}
	if _, _, ok := r.GetPoint(43); ok {
		t.Fatal("GetPoint(43) should be absent")
	}
}

// Coordinate round-trip property across the OSM-valid range.
func TestCoordinateRoundTrip(t *testing.T) {
	cases := []float64{0.0001, -0.0001, 45.0, -90.0, 180.0, -180.0, 199.9999999}
	for _, v := range cases {
		encoded, err := geocoord.Encode(v)
		if err != nil {
			t.Fatalf("encode(%v): %v", v, err)
		}
		decoded := geocoord.Decode(encoded)
		if math.Abs(decoded-v) > coordTolerance {
			t.Fatalf("round trip for %v: got %v, diff %v", v, decoded, decoded-v)
		}
	}
}
