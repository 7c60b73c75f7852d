package elementcache

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
)

// bytesCodec is a minimal Codec[[]byte] used to test the cache without
// depending on the osmpayload example package (which lives outside
// internal/ and would create an import-direction inversion).
var bytesCodec = Codec[[]byte]{
	Encode: func(w io.Writer, v []byte) error {
		_, err := w.Write(v)
		return err
	},
	Decode: func(r io.Reader, size int) ([]byte, error) {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	},
}

// S2/S3: three payloads round-trip byte for byte, with and without
// preload; a miss for an absent id returns false.
func testPayloadRoundTrip(t *testing.T, preload bool) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "elements.cache")

	w, err := NewWriter(path, bytesCodec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	payloads := map[uint64]string{
		1:       "alpha",
		1000000: "beta",
		42:      "gamma delta",
	}
	for _, id := range []uint64{1, 1000000, 42} {
		if err := w.Write(id, []byte(payloads[id])); err != nil {
			t.Fatalf("Write(%d): %v", id, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewReader(path, bytesCodec, preload)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	if err := r.LoadOffsets(); err != nil {
		t.Fatalf("LoadOffsets: %v", err)
	}

	for id, want := range payloads {
		got, ok := r.Read(id)
		if !ok {
			t.Fatalf("Read(%d) = not found, want %q", id, want)
		}
		if !bytes.Equal(got, []byte(want)) {
			t.Fatalf("Read(%d) = %q, want %q", id, got, want)
		}
	}

	if _, ok := r.Read(7); ok {
		t.Fatalf("Read(7) should be absent")
	}
}

func TestPayloadRoundTripNoPreload(t *testing.T) {
	testPayloadRoundTrip(t, false)
}

func TestPayloadRoundTripPreload(t *testing.T) {
	testPayloadRoundTrip(t, true)
}

// Duplicate ids: Write(id, A) then Write(id, B); after reopen, Read(id)
// returns A, because its offset index entry sorts smallest.
func TestDuplicateIDEarliestWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "elements.cache")

	w, err := NewWriter(path, bytesCodec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Write(5, []byte("A")); err != nil {
		t.Fatalf("Write A: %v", err)
	}
	if err := w.Write(5, []byte("BB")); err != nil {
		t.Fatalf("Write B: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewReader(path, bytesCodec, false)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	if err := r.LoadOffsets(); err != nil {
		t.Fatalf("LoadOffsets: %v", err)
	}

	got, ok := r.Read(5)
	if !ok {
		t.Fatalf("Read(5) not found")
	}
	if string(got) != "A" {
		t.Fatalf("Read(5) = %q, want %q", got, "A")
	}
}
