// Package vcfio implements the seekable, line-oriented variant-file reader
// and the boundary-record splicing used by sharding (spec.md §4.3, §4.5).
//
// A Reader tracks a current record, a previous record, and the byte offset
// each was read from, the way encoding/fastq's fileHandle tracks a single
// read cursor, generalized to remember one record of look-behind (needed to
// splice a reference block that straddles a cut).
package vcfio

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"

	"github.com/grailbio/gvcfshard/position"
	"github.com/grailbio/gvcfshard/refcache"
)

// UnknownOffset marks an offset that has not been recorded yet (e.g. the
// "previous" record right after a seek, before any record has been read).
const UnknownOffset int64 = -1

// Reader is a seekable cursor over one variant file's records. It is not
// safe for concurrent use; callers that need concurrent access open one
// Reader per goroutine (see safecut.Finder).
type Reader struct {
	ctx   context.Context
	path  string
	f     file.File
	size  int64
	rs    io.ReadSeeker
	br    *bufio.Reader
	order *position.ContigOrder

	channelOffset int64 // next unread byte, relative to the file start

	primed        bool
	current       *Record
	currentOffset int64

	previous       *Record
	previousOffset int64
}

// Open opens the variant file at path for seekable reading.
func Open(ctx context.Context, path string, order *position.ContigOrder) (*Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "vcfio: open", path)
	}
	info, err := f.Stat(ctx)
	if err != nil {
		_ = f.Close(ctx)
		return nil, errors.E(err, "vcfio: stat", path)
	}
	rs, ok := f.Reader(ctx).(io.ReadSeeker)
	if !ok {
		_ = f.Close(ctx)
		return nil, errors.E("vcfio: " + path + ": underlying reader does not support seeking")
	}
	r := &Reader{
		ctx:   ctx,
		path:  path,
		f:     f,
		size:  info.Size(),
		rs:    rs,
		order: order,
	}
	if err := r.Seek(0); err != nil {
		_ = f.Close(ctx)
		return nil, err
	}
	return r, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close(r.ctx)
}

// Size is the total byte size of the underlying file.
func (r *Reader) Size() int64 { return r.size }

// CurrentOffset returns the byte offset Current was read from, or the
// file size if the cursor is at EOF.
func (r *Reader) CurrentOffset() (int64, error) {
	eof, err := r.IsEOF()
	if err != nil {
		return 0, err
	}
	if eof {
		return r.size, nil
	}
	return r.currentOffset, nil
}

// ResumeOffset returns the byte offset from which a fresh Reader should
// Seek to correctly reconstruct both Previous and Current relative to
// the cursor's current position: the offset Previous was read from, or 0
// (the start of the file) if no record precedes Current since the last
// Seek. This is what safecut.Finder hands to vcfio.Copy
// as a shard's start offset, mirroring what the mindex file itself
// stores for each shard (spec.md §3: "at or before the record covering
// shard i").
func (r *Reader) ResumeOffset() (int64, error) {
	if err := r.ensurePrimed(); err != nil {
		return 0, err
	}
	if r.previousOffset == UnknownOffset {
		return 0, nil
	}
	return r.previousOffset, nil
}

func (r *Reader) resetCursor(offset int64) {
	r.channelOffset = offset
	r.primed = false
	r.current = nil
	r.currentOffset = UnknownOffset
	r.previous = nil
	r.previousOffset = UnknownOffset
}

// Seek repositions the reader at byte offset in the underlying file. No
// record is read until the next call to Current, Next, AdvanceTo, or
// AdvanceToAtLeast (spec §4.3: "lazy priming after seek").
func (r *Reader) Seek(offset int64) error {
	if _, err := r.rs.Seek(offset, io.SeekStart); err != nil {
		return errors.E(err, "vcfio: seek", r.path)
	}
	r.br = bufio.NewReaderSize(r.rs, 1<<16)
	r.resetCursor(offset)
	return nil
}

// ensurePrimed reads forward to the first record at or after the current
// cursor, skipping comment lines, the first time it is called after a
// seek.
func (r *Reader) ensurePrimed() error {
	if r.primed {
		return nil
	}
	r.primed = true
	return r.advance()
}

// advance reads the next non-comment, non-blank line into r.current,
// shifting the old current into r.previous. It leaves r.current nil at
// EOF.
func (r *Reader) advance() error {
	r.previous = r.current
	r.previousOffset = r.currentOffset
	for {
		lineStart := r.channelOffset
		line, err := r.br.ReadString('\n')
		if err != nil && err != io.EOF {
			return errors.E(err, "vcfio: read", r.path)
		}
		if len(line) == 0 && err == io.EOF {
			r.current = nil
			r.currentOffset = UnknownOffset
			return nil
		}
		hadNewline := strings.HasSuffix(line, "\n")
		r.channelOffset += int64(len(line))
		text := line
		if hadNewline {
			text = line[:len(line)-1]
		}
		if text == "" || strings.HasPrefix(text, "#") {
			if err == io.EOF {
				r.current = nil
				r.currentOffset = UnknownOffset
				return nil
			}
			continue
		}
		rec, perr := parseRecord(text, r.order)
		if perr != nil {
			return errors.E(perr, "vcfio: parse", r.path)
		}
		r.current = rec
		r.currentOffset = lineStart
		if log.At(log.Debug) {
			log.Debug.Printf("vcfio: %s: record %s at offset %d", r.path, rec.Contig(), lineStart)
		}
		return nil
	}
}

// Next advances the cursor by one record, skipping comments.
func (r *Reader) Next() error {
	if err := r.ensurePrimed(); err != nil {
		return err
	}
	return r.advance()
}

// Current returns the record at the cursor, or nil at EOF.
func (r *Reader) Current() (*Record, error) {
	if err := r.ensurePrimed(); err != nil {
		return nil, err
	}
	return r.current, nil
}

// Previous returns the record immediately preceding Current (the last
// record consumed via Next/AdvanceTo before the current one), or nil if
// there isn't one in this seek window yet.
func (r *Reader) Previous() (*Record, error) {
	if err := r.ensurePrimed(); err != nil {
		return nil, err
	}
	return r.previous, nil
}

// IsEOF reports whether the cursor has run past the last record.
func (r *Reader) IsEOF() (bool, error) {
	if err := r.ensurePrimed(); err != nil {
		return false, err
	}
	return r.current == nil, nil
}

// Position returns Current's genomic position. Calling it at EOF is a
// programmer error.
func (r *Reader) Position() (position.Position, error) {
	eof, err := r.IsEOF()
	if err != nil {
		return position.Position{}, err
	}
	if eof {
		log.Panicf("vcfio: Position called at EOF on %s", r.path)
	}
	return r.current.Position(), nil
}

// AdvanceTo moves the cursor forward until Position() >= target. If
// throwIfPast and the cursor is already past target with a current
// record, that is a programmer error (the caller asked to reach a target
// that has already been passed).
func (r *Reader) AdvanceTo(target position.Position, throwIfPast bool) error {
	if err := r.ensurePrimed(); err != nil {
		return err
	}
	for {
		eof, err := r.IsEOF()
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
		pos := r.current.Position()
		if throwIfPast && pos.GT(target) {
			log.Panicf("vcfio: %s: AdvanceTo(%s) called but cursor is already at %s", r.path, target, pos)
		}
		if !pos.LT(target) {
			return nil
		}
		if err := r.advance(); err != nil {
			return err
		}
		throwIfPast = false
	}
}

// AdvanceToAtLeast is AdvanceTo with throwIfPast=false; it is a no-op if
// already at EOF.
func (r *Reader) AdvanceToAtLeast(target position.Position) error {
	return r.AdvanceTo(target, false)
}

// writeLine writes s followed by a single "\n" to w, returning the total
// bytes written.
func writeLine(w io.Writer, s string) (int64, error) {
	n1, err := io.WriteString(w, s)
	if err != nil {
		return int64(n1), err
	}
	n2, err := io.WriteString(w, "\n")
	return int64(n1 + n2), err
}

// saveFirstRecord implements spec.md §4.5's begin-of-shard splice: it
// advances to start, and if the cursor lands exactly on start, the record
// there is emitted verbatim; otherwise, if the record immediately before
// start is a reference block (has an END=) that extends at or past
// start, a copy of it that begins at start is emitted first (POS rewritten
// to start.Pos, REF to the reference base there, END unchanged), and then
// the record at the (unchanged) cursor is emitted too. It returns the byte
// offset in the source file from which bulk copying should resume.
func (r *Reader) saveFirstRecord(start position.Position, refs *refcache.Cache, sink io.Writer) (int64, error) {
	if err := r.AdvanceTo(start, true); err != nil {
		return 0, err
	}
	eof, err := r.IsEOF()
	if err != nil {
		return 0, err
	}
	if eof {
		return r.size, nil
	}
	afterCut := r.current.Position()
	if !afterCut.Equal(start) {
		prev, perr := r.Previous()
		if perr != nil {
			return 0, perr
		}
		if prev != nil {
			beforePos := prev.Position()
			if !beforePos.LT(start) {
				log.Panicf("vcfio: %s: previous record %s is not before cut %s", r.path, beforePos, start)
			}
			if end, ok := prev.EndPosition(); ok && end.Pos >= start.Pos {
				base, berr := refs.BaseAt(start.Contig, start.Pos)
				if berr != nil {
					return 0, berr
				}
				spliced := replaceField(prev.Line(), fieldPos, strconv.FormatInt(start.Pos, 10))
				spliced = replaceField(spliced, fieldRef, string(base))
				if _, werr := writeLine(sink, spliced); werr != nil {
					return 0, werr
				}
			}
		}
	}
	if _, werr := writeLine(sink, r.current.Line()); werr != nil {
		return 0, werr
	}
	return r.channelOffset, nil
}

// saveLastRecord implements spec.md §4.5's end-of-shard splice: it emits
// every record strictly before excluded verbatim, except the very last
// one, which is truncated (its END= rewritten to excluded.Pos-1) if it is
// a reference block extending at or past excluded.
func (r *Reader) saveLastRecord(excluded position.Position, sink io.Writer) error {
	eof, err := r.IsEOF()
	if err != nil {
		return err
	}
	if eof {
		return nil
	}
	var last *Record
	for {
		eof, err := r.IsEOF()
		if err != nil {
			return err
		}
		if eof || !r.current.Position().LT(excluded) {
			break
		}
		if last != nil {
			if _, werr := writeLine(sink, last.Line()); werr != nil {
				return werr
			}
		}
		last = r.current
		if err := r.advance(); err != nil {
			return err
		}
	}
	if last == nil {
		return nil
	}
	if end, ok := last.EndPosition(); ok && end.Pos >= excluded.Pos {
		if end.Contig != excluded.Contig {
			log.Panicf("vcfio: %s: reference block %s spans a contig boundary at cut %s", r.path, last.Line(), excluded)
		}
		truncated := replaceField(last.Line(), fieldInfo, rewriteEnd(last.Info(), excluded.Pos-1))
		_, err = writeLine(sink, truncated)
		return err
	}
	_, err = writeLine(sink, last.Line())
	return err
}

// replaceField returns line with its i'th tab field replaced by value.
func replaceField(line string, i int, value string) string {
	fields := strings.Split(line, "\t")
	for len(fields) <= i {
		fields = append(fields, "")
	}
	fields[i] = value
	return strings.Join(fields, "\t")
}

// Copy performs the byte-accurate sharded copy-out of spec.md §4.5: it
// writes, to sink, a spliced first record (if needed), a raw byte range,
// and a spliced last record (if needed), so that the output is a valid
// stand-alone shard covering exactly [startPos, endPos) of this file.
// endPos may be nil to mean "through end of file" (the last shard of the
// last output).
func (r *Reader) Copy(startOffset int64, startPos position.Position, endOffset int64, endPos *position.Position, refs *refcache.Cache, sink io.Writer) (int64, error) {
	var written countingWriter
	written.w = sink

	if startOffset >= r.size {
		return 0, nil
	}
	if err := r.Seek(startOffset); err != nil {
		return 0, err
	}
	bulkStart, err := r.saveFirstRecord(startPos, refs, &written)
	if err != nil {
		return written.n, err
	}

	const bufSize = 1 << 20
	buf := make([]byte, bufSize)
	if endPos == nil {
		if _, err := io.CopyBuffer(&written, r.br, buf); err != nil {
			return written.n, errors.E(err, "vcfio: bulk copy", r.path)
		}
		return written.n, nil
	}

	if endOffset < bulkStart {
		endOffset = bulkStart
	}
	if _, err := io.CopyBuffer(&written, io.LimitReader(r.br, endOffset-bulkStart), buf); err != nil {
		return written.n, errors.E(err, "vcfio: bulk copy", r.path)
	}
	if err := r.Seek(endOffset); err != nil {
		return written.n, err
	}
	if err := r.saveLastRecord(*endPos, &written); err != nil {
		return written.n, err
	}
	return written.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
