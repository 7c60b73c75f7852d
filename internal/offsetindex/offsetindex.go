// Package offsetindex implements the id-keyed offset table described by
// the cache's core: a write side that buffers (key, value) pairs and
// flushes them in batches to an append-only file, and a read side that
// loads the whole file into memory, sorts it, and answers point and
// range lookups by binary search.
//
// The value type V is intentionally not a Go generic constraint over
// arbitrary structs - there is no portable way to treat an arbitrary
// struct as a flat byte run without unsafe tricks that would undercut
// the single-architecture assumption this format already makes on its
// own terms. Instead, callers supply a ValueCodec[V] that encodes and
// decodes a fixed-size byte run, which is the same "trivially copyable
// POD" contract expressed as ordinary Go values.
package offsetindex

import (
	"encoding/binary"
	"fmt"
	"sort"

	"osmcache/internal/fileio"
)

// FlushThreshold is the number of buffered entries a Writer accumulates
// before flushing them to disk as one batch.
const FlushThreshold = 1024

// keySize is the on-disk width of the Key field, always a uint64 in
// host (native) byte order - these files are not meant to outlive the
// architecture that produced them.
const keySize = 8

// ValueCodec describes how to pack and unpack a fixed-size value V into
// the raw bytes that follow a record's key, plus how two values compare
// for the ascending-by-value tie-break lookups rely on.
type ValueCodec[V any] struct {
	Size    int
	Encode  func(buf []byte, v V)
	Decode  func(buf []byte) V
	Compare func(a, b V) int
}

// Uint64Codec is the ValueCodec ElementCache uses: its value is the byte
// offset of a payload record.
var Uint64Codec = ValueCodec[uint64]{
	Size: 8,
	Encode: func(buf []byte, v uint64) {
		binary.NativeEndian.PutUint64(buf, v)
	},
	Decode: func(buf []byte) uint64 {
		return binary.NativeEndian.Uint64(buf)
	},
	Compare: func(a, b uint64) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	},
}

// IndexEntry is one on-disk (key, value) record.
type IndexEntry[V any] struct {
	Key   uint64
	Value V
}

// Writer accumulates (key, value) pairs in memory and flushes them to an
// append-only file in batches. Its zero value is not usable; construct
// one with NewWriter. A Writer must be closed to guarantee buffered
// entries reach disk.
type Writer[V any] struct {
	f      fileio.SequentialWriter
	codec  ValueCodec[V]
	buf    []IndexEntry[V]
	closed bool
}

// NewWriter wraps f as a Writer using codec to encode each value.
func NewWriter[V any](f fileio.SequentialWriter, codec ValueCodec[V]) *Writer[V] {
	return &Writer[V]{f: f, codec: codec}
}

// Add appends a (key, value) pair to the in-memory buffer, flushing the
// buffer once it exceeds FlushThreshold entries.
func (w *Writer[V]) Add(key uint64, value V) {
	w.buf = append(w.buf, IndexEntry[V]{Key: key, Value: value})
	if len(w.buf) > FlushThreshold {
		// WriteAll cannot fail here in the happy path; surface I/O
		// failures would require Add to return an error, which would
		// ripple through every call site. Flush errors are instead
		// caught on the final, explicit WriteAll/Close.
		_ = w.WriteAll()
	}
}

// WriteAll flushes the buffered entries to disk in insertion order and
// clears the buffer. It is safe to call with an empty buffer.
func (w *Writer[V]) WriteAll() error {
	if len(w.buf) == 0 {
		return nil
	}
	entrySize := keySize + w.codec.Size
	out := make([]byte, len(w.buf)*entrySize)
	for i, e := range w.buf {
		off := i * entrySize
		binary.NativeEndian.PutUint64(out[off:off+keySize], e.Key)
		w.codec.Encode(out[off+keySize:off+entrySize], e.Value)
	}
	if _, err := w.f.Write(out); err != nil {
		return fmt.Errorf("offsetindex: flush: %w", err)
	}
	w.buf = w.buf[:0]
	return nil
}

// Close flushes any remaining buffered entries and closes the
// underlying file. It is idempotent: calling it more than once only
// flushes and closes once.
func (w *Writer[V]) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.WriteAll(); err != nil {
		return err
	}
	return w.f.Close()
}

// Reader loads an offset index file in its entirety and answers lookups
// against the sorted, in-memory copy. Construct one with NewReader, then
// call ReadAll before any lookup.
type Reader[V any] struct {
	r       fileio.RandomReader
	codec   ValueCodec[V]
	entries []IndexEntry[V]
	loaded  bool
}

// NewReader wraps r as a Reader using codec to decode each value.
func NewReader[V any](r fileio.RandomReader, codec ValueCodec[V]) *Reader[V] {
	return &Reader[V]{r: r, codec: codec}
}

// ErrDamagedIndex is returned by ReadAll when the file length is not a
// whole multiple of the record size - an unrecoverable condition for a
// generator pass; it is up to the caller (typically a cmd/ entrypoint)
// to escalate it with logger.Critical.
type ErrDamagedIndex struct {
	Path      string
	Size      uint64
	EntrySize int
}

func (e *ErrDamagedIndex) Error() string {
	return fmt.Sprintf("offsetindex: damaged file: size %d is not a multiple of entry size %d", e.Size, e.EntrySize)
}

// ReadAll loads the entire index file into memory and sorts the entries
// ascending by (Key, Value), the ordering GetValueByKey and ForEachByKey
// depend on.
func (r *Reader[V]) ReadAll() error {
	size, err := r.r.Size()
	if err != nil {
		return fmt.Errorf("offsetindex: stat: %w", err)
	}
	entrySize := keySize + r.codec.Size
	if size%uint64(entrySize) != 0 {
		return &ErrDamagedIndex{Size: size, EntrySize: entrySize}
	}

	raw := make([]byte, size)
	if size > 0 {
		if _, err := r.r.ReadAt(raw, 0); err != nil {
			return fmt.Errorf("offsetindex: read: %w", err)
		}
	}

	n := int(size) / entrySize
	entries := make([]IndexEntry[V], n)
	for i := 0; i < n; i++ {
		off := i * entrySize
		entries[i] = IndexEntry[V]{
			Key:   binary.NativeEndian.Uint64(raw[off : off+keySize]),
			Value: r.codec.Decode(raw[off+keySize : off+entrySize]),
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key != entries[j].Key {
			return entries[i].Key < entries[j].Key
		}
		return r.codec.Compare(entries[i].Value, entries[j].Value) < 0
	})

	r.entries = entries
	r.loaded = true
	return nil
}

// lowerBound returns the index of the first entry with Key >= key.
func (r *Reader[V]) lowerBound(key uint64) int {
	return sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Key >= key
	})
}

// GetValueByKey returns the value of the first matching entry in
// ascending-value order - i.e. the smallest value recorded for key - or
// false if key is absent.
func (r *Reader[V]) GetValueByKey(key uint64) (V, bool) {
	i := r.lowerBound(key)
	if i < len(r.entries) && r.entries[i].Key == key {
		return r.entries[i].Value, true
	}
	var zero V
	return zero, false
}

// ForEachByKey invokes visit for every entry matching key, in ascending
// value order, stopping early if visit returns true.
func (r *Reader[V]) ForEachByKey(key uint64, visit func(V) bool) {
	for i := r.lowerBound(key); i < len(r.entries) && r.entries[i].Key == key; i++ {
		if visit(r.entries[i].Value) {
			return
		}
	}
}

// Close releases the underlying reader.
func (r *Reader[V]) Close() error {
	return r.r.Close()
}
