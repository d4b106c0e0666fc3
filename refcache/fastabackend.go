package refcache

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strconv"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// faiEntry is one row of a samtools .fai FASTA index: the sequence
// name, its length in bases, its byte offset in the FASTA file, and its
// line-wrapping geometry (bases per line, bytes per line including the
// newline).
type faiEntry struct {
	length    int64
	offset    int64
	lineBase  int64
	lineWidth int64
}

var faiLineRE = regexp.MustCompile(`^(\S+)\t(\d+)\t(\d+)\t(\d+)\t(\d+)`)

// FastaBackend is a refcache.Backend over a line-wrapped FASTA file with
// a samtools .fai index, seeking directly to the byte holding a single
// requested base instead of reading whole sequences into memory (spec
// §4.2: looking up one base must not require loading a whole contig).
type FastaBackend struct {
	ctx context.Context
	f   file.File
	rs  io.ReadSeeker

	mu      sync.Mutex
	entries map[string]faiEntry
}

// OpenFasta opens a FASTA file and its .fai index and returns a Backend
// that answers single-base queries against it. Constructing a Cache
// around OpenFasta's result (rather than calling it directly) is what
// gives it lazy, on-first-use initialization (spec §4.2).
func OpenFasta(ctx context.Context, fastaPath, faiPath string) (Backend, error) {
	faiFile, err := file.Open(ctx, faiPath)
	if err != nil {
		return nil, errors.E(err, "refcache: open fai", faiPath)
	}
	defer func() { _ = faiFile.Close(ctx) }()

	entries := map[string]faiEntry{}
	scanner := bufio.NewScanner(faiFile.Reader(ctx))
	for scanner.Scan() {
		m := faiLineRE.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		length, _ := strconv.ParseInt(m[2], 10, 64)
		offset, _ := strconv.ParseInt(m[3], 10, 64)
		lineBase, _ := strconv.ParseInt(m[4], 10, 64)
		lineWidth, _ := strconv.ParseInt(m[5], 10, 64)
		entries[m[1]] = faiEntry{length: length, offset: offset, lineBase: lineBase, lineWidth: lineWidth}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "refcache: scan fai", faiPath)
	}

	f, err := file.Open(ctx, fastaPath)
	if err != nil {
		return nil, errors.E(err, "refcache: open fasta", fastaPath)
	}
	rs, ok := f.Reader(ctx).(io.ReadSeeker)
	if !ok {
		_ = f.Close(ctx)
		return nil, errors.E("refcache: " + fastaPath + ": underlying reader does not support seeking")
	}
	return &FastaBackend{ctx: ctx, f: f, rs: rs, entries: entries}, nil
}

// Close releases the underlying FASTA file.
func (b *FastaBackend) Close() error {
	return b.f.Close(b.ctx)
}

// BaseAt implements Backend. pos is 1-based.
func (b *FastaBackend) BaseAt(contig string, pos int64) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ent, ok := b.entries[contig]
	if !ok {
		return 0, errors.E("refcache: contig not found in .fai index: " + contig)
	}
	start := pos - 1 // 0-based
	if start < 0 || start >= ent.length {
		return 0, errors.E("refcache: position out of range for contig " + contig)
	}

	charsPerNewline := ent.lineWidth - ent.lineBase
	offset := ent.offset + start + charsPerNewline*(start/ent.lineBase)

	if _, err := b.rs.Seek(offset, io.SeekStart); err != nil {
		return 0, errors.E(err, "refcache: seek fasta")
	}
	var buf [1]byte
	if _, err := io.ReadFull(b.rs, buf[:]); err != nil {
		return 0, errors.E(err, "refcache: read fasta")
	}
	return buf[0], nil
}
