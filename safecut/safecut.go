// Package safecut finds a safe-cut genomic position: one that never
// splits a multi-base deletion record across any of a set of input
// variant files (spec.md §4.4).
//
// A position that falls inside a reference block (END=) is always safe
// to cut, because vcfio's boundary splice can rewrite the block into two
// shorter ones. A position that falls strictly inside a deletion (pos <
// cut <= pos+len(REF)-1) is not: the deletion record itself would have
// to be split, which the format has no way to express. Finding a safe
// cut is therefore a fixed point: push the tentative position past any
// deletion it lands inside, in any file, then recheck every file against
// the new tentative position (pushing past one file's deletion can land
// inside another file's), until nothing moves.
package safecut

import (
	"context"

	"github.com/grailbio/gvcfshard/internal/workpool"
	"github.com/grailbio/gvcfshard/mindex"
	"github.com/grailbio/gvcfshard/position"
	"github.com/grailbio/gvcfshard/vcfio"
)

// Input is one (variant file, mindex file) pair that a Finder searches
// across.
type Input struct {
	VariantPath string
	MindexPath  string
}

// Finder holds one open vcfio.Reader and one open mindex.Mindex per
// Input, and reuses them across repeated Init/FindSafeCut calls (one per
// shard boundary), the way a single BAM index stays open across many
// shard lookups in BAM-oriented tooling.
type Finder struct {
	ctx     context.Context
	order   *position.ContigOrder
	readers []*vcfio.Reader
	mindex  []*mindex.Mindex

	// threads is the configured parallelism for this Finder's per-input
	// fan-out (spec §9's "parallelism = min(1, threads)" open question,
	// resolved to use threads directly rather than the literal expression,
	// which always evaluates to 1). 0 means "use workpool's default".
	threads int
}

// Open opens one reader and one mindex per input. prefetch is forwarded
// to mindex.Open (0 selects mindex.DefaultPrefetch). threads bounds how
// many inputs are advanced concurrently per Init/FindSafeCut round (0
// selects workpool.MaxConcurrency).
func Open(ctx context.Context, inputs []Input, order *position.ContigOrder, prefetch, threads int) (*Finder, error) {
	f := &Finder{ctx: ctx, order: order, threads: threads}
	for _, in := range inputs {
		r, err := vcfio.Open(ctx, in.VariantPath, order)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		f.readers = append(f.readers, r)

		m, err := mindex.Open(ctx, in.MindexPath, prefetch)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		f.mindex = append(f.mindex, m)
	}
	return f, nil
}

// Close releases every reader and mindex.
func (f *Finder) Close() error {
	var first error
	for _, r := range f.readers {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, m := range f.mindex {
		if m == nil {
			continue
		}
		if err := m.Close(f.ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NumInputs returns the number of (variant file, mindex file) pairs this
// Finder searches across.
func (f *Finder) NumInputs() int { return len(f.readers) }

// Reader returns input i's open vcfio.Reader, so that callers (the
// sharder package) can reuse the same open file descriptor and cursor
// for the subsequent byte-accurate copy instead of reopening the file.
func (f *Finder) Reader(i int) *vcfio.Reader { return f.readers[i] }

// Init seeks every reader to its mindex entry for shard, so that the
// subsequent FindSafeCut calls for that shard boundary start scanning
// near the right place instead of from the start of each file. The seeks
// run with bounded, batched concurrency (internal/workpool) since a
// large shard count means Init is called often and each call touches
// every input file.
func (f *Finder) Init(shard int) error {
	tasks := make([]workpool.Task, len(f.readers))
	for i := range f.readers {
		i := i
		tasks[i] = func(ctx context.Context) error {
			offset, err := f.mindex[i].Get(shard)
			if err != nil {
				return err
			}
			if offset == mindex.PastEOF {
				offset = f.readers[i].Size()
			}
			return f.readers[i].Seek(offset)
		}
	}
	return workpool.RunN(f.ctx, tasks, f.threads)
}

// FindSafeCut returns the smallest position >= tentative that is safe to
// cut in every input file: the fixed point of repeatedly pushing
// tentative past whichever file's deletion record it currently lands
// inside.
func (f *Finder) FindSafeCut(tentative position.Position) (position.Position, error) {
	for {
		tasks := make([]workpool.Task, len(f.readers))
		pushed := make([]position.Position, len(f.readers))
		for i := range f.readers {
			i := i
			tasks[i] = func(ctx context.Context) error {
				p, err := pushPastDeletion(f.readers[i], tentative)
				pushed[i] = p
				return err
			}
		}
		if err := workpool.RunN(f.ctx, tasks, f.threads); err != nil {
			return position.Position{}, err
		}

		moved := false
		next := tentative
		for _, p := range pushed {
			if p.GT(next) {
				next = p
				moved = true
			}
		}
		if !moved {
			return tentative, nil
		}
		tentative = next
	}
}

// pushPastDeletion advances r to tentative and, if the record
// immediately before it is a deletion whose extent reaches tentative or
// beyond, returns the position just past that deletion. Otherwise it
// returns tentative unchanged.
func pushPastDeletion(r *vcfio.Reader, tentative position.Position) (position.Position, error) {
	if err := r.AdvanceToAtLeast(tentative); err != nil {
		return tentative, err
	}
	prev, err := r.Previous()
	if err != nil {
		return tentative, err
	}
	if prev == nil || prev.Contig() != tentative.Contig {
		return tentative, nil
	}
	if !prev.IsDeletion() {
		return tentative, nil
	}
	extentEnd := prev.ExtentEnd()
	if extentEnd < tentative.Pos {
		// The deletion ends before tentative: cutting at tentative doesn't
		// split it.
		return tentative, nil
	}
	return position.New(tentative.Order(), tentative.Contig, extentEnd+1), nil
}

// ReaderOffset returns the byte offset vcfio.Copy should seek input i's
// reader to in order to reconstruct this cut correctly: the offset of
// the record immediately before the converged cut position (or 0, if
// no record before the cut was read since the reader's last seek).
func (f *Finder) ReaderOffset(i int) (int64, error) {
	return f.readers[i].ResumeOffset()
}
