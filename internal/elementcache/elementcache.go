// Package elementcache stores arbitrary variable-length element payloads
// addressable by a 64-bit id, persisted across generator passes. It
// pairs a length-prefixed payload file with an offsetindex Writer/Reader
// whose value is the byte offset of each payload record - the offset
// index (small, dense, random-access) stays fully memory-resident while
// payloads (large, sequentially written) stay on disk, with an optional
// preload upgrade when RAM permits.
package elementcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"osmcache/internal/fileio"
	"osmcache/internal/logger"
	"osmcache/internal/offsetindex"
)

const sizePrefixWidth = 4

// Codec supplies the caller's element encoding; the cache itself never
// interprets a payload's bytes.
type Codec[T any] struct {
	Encode func(w io.Writer, v T) error
	Decode func(r io.Reader, size int) (T, error)
}

// ErrPayloadTooLarge is returned when an encoded payload's length does
// not fit in the u32 size prefix.
var ErrPayloadTooLarge = errors.New("elementcache: encoded payload exceeds uint32 size prefix")

// offsetsSuffix is appended to the payload file's path to name its
// paired offset index file.
const offsetsSuffix = ".offsets"

// Writer appends element payloads to a cache, building its offset index
// in memory and flushing it in batches.
type Writer[T any] struct {
	payload     *fileio.File
	offsetsFile *fileio.File
	offsets     *offsetindex.Writer[uint64]
	codec       Codec[T]
	scratch     bytes.Buffer
	closed      bool
}

// NewWriter opens (creating if absent) a payload file at path and its
// paired offset index at path+".offsets".
func NewWriter[T any](path string, codec Codec[T]) (*Writer[T], error) {
	payload, err := fileio.CreateAppend(path)
	if err != nil {
		return nil, fmt.Errorf("elementcache: open payload file: %w", err)
	}
	offsetsFile, err := fileio.CreateAppend(path + offsetsSuffix)
	if err != nil {
		payload.Close()
		return nil, fmt.Errorf("elementcache: open offsets file: %w", err)
	}
	return &Writer[T]{
		payload:     payload,
		offsetsFile: offsetsFile,
		offsets:     offsetindex.NewWriter(offsetsFile, offsetindex.Uint64Codec),
		codec:       codec,
	}, nil
}

// Write snapshots the current payload-file write position, records it
// against id in the offset index, then appends
// [u32 size][encoded bytes] to the payload file.
func (w *Writer[T]) Write(id uint64, value T) error {
	pos, err := w.payload.Pos()
	if err != nil {
		return fmt.Errorf("elementcache: payload position: %w", err)
	}

	w.scratch.Reset()
	if err := w.codec.Encode(&w.scratch, value); err != nil {
		return fmt.Errorf("elementcache: encode payload for id %d: %w", id, err)
	}
	if w.scratch.Len() > math.MaxUint32 {
		return fmt.Errorf("%w: id %d, %d bytes", ErrPayloadTooLarge, id, w.scratch.Len())
	}

	w.offsets.Add(id, pos)

	var sizeBuf [sizePrefixWidth]byte
	binary.NativeEndian.PutUint32(sizeBuf[:], uint32(w.scratch.Len()))
	if _, err := w.payload.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("elementcache: write size prefix for id %d: %w", id, err)
	}
	if _, err := w.payload.Write(w.scratch.Bytes()); err != nil {
		return fmt.Errorf("elementcache: write payload for id %d: %w", id, err)
	}
	return nil
}

// SaveOffsets flushes the offset index's pending entries.
func (w *Writer[T]) SaveOffsets() error {
	return w.offsets.WriteAll()
}

// Close flushes remaining offset entries and closes both files. It is
// idempotent.
func (w *Writer[T]) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.offsets.Close(); err != nil {
		w.payload.Close()
		return fmt.Errorf("elementcache: close offsets: %w", err)
	}
	if err := w.payload.Close(); err != nil {
		return fmt.Errorf("elementcache: close payload: %w", err)
	}
	return nil
}

// Reader retrieves element payloads written by a Writer against the
// same path.
type Reader[T any] struct {
	path    string
	payload *fileio.File
	offsets *offsetindex.Reader[uint64]
	codec   Codec[T]

	preloaded bool
	buf       []byte
}

// NewReader opens a cache for reading. With preload, the entire payload
// file is read into memory immediately so Read never touches disk.
func NewReader[T any](path string, codec Codec[T], preload bool) (*Reader[T], error) {
	payload, err := fileio.OpenRead(path)
	if err != nil {
		return nil, fmt.Errorf("elementcache: open payload file: %w", err)
	}
	offsetsFile, err := fileio.OpenRead(path + offsetsSuffix)
	if err != nil {
		payload.Close()
		return nil, fmt.Errorf("elementcache: open offsets file: %w", err)
	}

	r := &Reader[T]{
		path:    path,
		payload: payload,
		offsets: offsetindex.NewReader(offsetsFile, offsetindex.Uint64Codec),
		codec:   codec,
	}

	if preload {
		size, err := payload.Size()
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("elementcache: stat payload file: %w", err)
		}
		buf := make([]byte, size)
		if size > 0 {
			if _, err := payload.ReadAt(buf, 0); err != nil {
				r.Close()
				return nil, fmt.Errorf("elementcache: preload payload file: %w", err)
			}
		}
		r.buf = buf
		r.preloaded = true
	}

	return r, nil
}

// LoadOffsets loads and sorts the offset index. It must be called
// before Read.
func (r *Reader[T]) LoadOffsets() error {
	return r.offsets.ReadAll()
}

// Read looks up id in the offset index. Absence is logged as a warning
// naming the offsets file and the id, and returns false; this is an
// ordinary negative result, not a fatal condition.
func (r *Reader[T]) Read(id uint64) (T, bool) {
	var zero T

	pos, ok := r.offsets.GetValueByKey(id)
	if !ok {
		logger.Warning("elementcache: id %d not found in %s", id, r.path+offsetsSuffix)
		return zero, false
	}

	var payload []byte
	if r.preloaded {
		if int(pos)+sizePrefixWidth > len(r.buf) {
			logger.Error("elementcache: offset %d for id %d is past end of preloaded payload file", pos, id)
			return zero, false
		}
		size := binary.NativeEndian.Uint32(r.buf[pos : pos+sizePrefixWidth])
		start := pos + sizePrefixWidth
		end := start + uint64(size)
		if end > uint64(len(r.buf)) {
			logger.Error("elementcache: payload for id %d runs past end of preloaded file", id)
			return zero, false
		}
		payload = r.buf[start:end]
	} else {
		var sizeBuf [sizePrefixWidth]byte
		if _, err := r.payload.ReadAt(sizeBuf[:], int64(pos)); err != nil {
			logger.Error("elementcache: read size prefix for id %d: %v", id, err)
			return zero, false
		}
		size := binary.NativeEndian.Uint32(sizeBuf[:])
		payload = make([]byte, size)
		if size > 0 {
			if _, err := r.payload.ReadAt(payload, int64(pos)+sizePrefixWidth); err != nil {
				logger.Error("elementcache: read payload for id %d: %v", id, err)
				return zero, false
			}
		}
	}

	value, err := r.codec.Decode(bytes.NewReader(payload), len(payload))
	if err != nil {
		logger.Error("elementcache: decode payload for id %d: %v", id, err)
		return zero, false
	}
	return value, true
}

// Close releases the underlying files.
func (r *Reader[T]) Close() error {
	if err := r.offsets.Close(); err != nil {
		r.payload.Close()
		return fmt.Errorf("elementcache: close offsets: %w", err)
	}
	return r.payload.Close()
}
