// Package mindex reads the external shard->byte-offset index (the
// "mindex") that accompanies each input variant file (spec.md §3, §4.1).
//
// The on-disk format is a flat array of fixed-size int64 entries, one per
// shards-table row, little-endian (see DESIGN.md for why little-endian was
// picked over host-endian). Entry i is the byte offset into the
// corresponding variant file at or before the record covering shard i; the
// sentinel PastEOF means "beyond end of file".
package mindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

const (
	// entrySize is the on-disk width of one mindex entry.
	entrySize = 8

	// PastEOF is the sentinel stored for a shard whose covering record lies
	// beyond the end of the corresponding variant file.
	PastEOF int64 = 1<<63 - 1

	// DefaultPrefetch is the default forward-prefetch window size (spec
	// §4.1: "k=3 suffices even for shards-per-output of 2", since finding
	// both the begin and end cuts of a shard requires two adjacent mindex
	// reads).
	DefaultPrefetch = 3
)

// Mindex supports random Get(shard) reads with a small forward-prefetch
// window, refilled on a cache miss. It is not safe for concurrent use by
// multiple goroutines without external synchronization (callers that want
// concurrent access should open one Mindex per goroutine; safecut.Finder
// opens one per input, and each of its tasks touches only its own).
type Mindex struct {
	ctx context.Context
	f   file.File
	r   io.ReadSeeker

	prefetch int

	// Cache window: entries covering shard numbers
	// [loadedBase, loadedBase+len(loaded)).
	loadedBase int
	loaded     []int64

	err errorreporter.T
}

// Open opens the mindex file at path with the given prefetch window (use
// DefaultPrefetch unless a caller has a specific reason not to).
func Open(ctx context.Context, path string, prefetch int) (*Mindex, error) {
	if prefetch < 1 {
		prefetch = DefaultPrefetch
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "mindex: open", path)
	}
	rs, ok := f.Reader(ctx).(io.ReadSeeker)
	if !ok {
		_ = f.Close(ctx)
		return nil, errors.E(fmt.Sprintf("mindex: %s: underlying reader does not support seeking", path))
	}
	return &Mindex{ctx: ctx, f: f, r: rs, prefetch: prefetch, loadedBase: -1}, nil
}

// Close releases the underlying file.
func (m *Mindex) Close(ctx context.Context) error {
	if err := m.f.Close(ctx); err != nil {
		m.err.Set(err)
	}
	return m.err.Err()
}

// Get returns the byte offset stored for shard i. Requesting a negative i
// is a programmer error; requesting an i past the last shard surfaces as
// an I/O-shaped error since Mindex does not itself know numShards (the
// caller already knows it, from the corresponding shards table).
func (m *Mindex) Get(shard int) (int64, error) {
	if shard < 0 {
		panic(fmt.Sprintf("mindex: negative shard index %d", shard))
	}
	if m.loaded == nil || shard < m.loadedBase || shard >= m.loadedBase+len(m.loaded) {
		if err := m.refill(shard); err != nil {
			return 0, err
		}
	}
	return m.loaded[shard-m.loadedBase], nil
}

// refill loads a window of up to m.prefetch entries starting at shard.
func (m *Mindex) refill(shard int) error {
	if _, err := m.r.Seek(int64(shard)*entrySize, io.SeekStart); err != nil {
		return errors.E(err, fmt.Sprintf("mindex: seek to shard %d", shard))
	}
	buf := make([]byte, entrySize*m.prefetch)
	n, err := io.ReadFull(m.r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return errors.E(err, fmt.Sprintf("mindex: read shard %d", shard))
	}
	// A short read (tail of the file) is fine; we just load fewer entries.
	n -= n % entrySize
	count := n / entrySize
	if count == 0 {
		return errors.E(fmt.Sprintf("mindex: shard %d is out of range", shard))
	}
	loaded := make([]int64, count)
	for i := 0; i < count; i++ {
		loaded[i] = int64(binary.LittleEndian.Uint64(buf[i*entrySize : (i+1)*entrySize]))
	}
	m.loaded = loaded
	m.loadedBase = shard
	return nil
}

// Write serializes entries (one per shard, in order) to w, little-endian,
// for use by tests and by external shards-table/mindex generation tooling
// (construction of the mindex file itself is out of scope per spec §1, but
// a writer is still useful for round-trip tests, spec §8 properties 4/8).
func Write(w io.Writer, entries []int64) error {
	buf := make([]byte, entrySize*len(entries))
	for i, e := range entries {
		binary.LittleEndian.PutUint64(buf[i*entrySize:(i+1)*entrySize], uint64(e))
	}
	_, err := w.Write(buf)
	return err
}
