// Package sharder orchestrates a sharded, byte-accurate copy-out of a
// set of aligned variant files: for each shard boundary in a shards
// table, it finds a safe cut in every input file (package safecut) and
// copies the corresponding byte range out of each input, splicing any
// reference block that straddles a cut (package vcfio).
//
// The per-shard, per-input copy work fans out with traverse.T{Limit:
// threads}.Each, the way encoding/converter.ConvertToPAM parallelizes
// per-shard BAM-to-PAM conversion, but bounded by the caller's -threads
// value rather than GOMAXPROCS.
package sharder

import (
	"context"
	"fmt"
	"time"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/traverse"
	"v.io/x/lib/vlog"

	"github.com/grailbio/gvcfshard/metrics"
	"github.com/grailbio/gvcfshard/position"
	"github.com/grailbio/gvcfshard/refcache"
	"github.com/grailbio/gvcfshard/safecut"
	"github.com/grailbio/gvcfshard/shardtable"
)

// OutputNamer returns the output path for input file inputIdx's copy of
// shard shardIdx.
type OutputNamer func(shardIdx, inputIdx int) string

// Sharder drives the shard/cut/copy pipeline for one set of aligned
// input files against one shards table.
type Sharder struct {
	ctx    context.Context
	finder *safecut.Finder
	table  *shardtable.Table
	inputs []safecut.Input
	refs   *refcache.Cache
	sink   *metrics.Sink

	// totalShards is the coarser-grained shard count a caller asked for
	// (spec §4.5 step 1: "shards total" on the CLI surface); each of this
	// Sharder's output shards covers shardsAtATime = table.NumShards() /
	// totalShards consecutive shards-table rows.
	totalShards int
	// threads bounds how many inputs the copy phase (traverse.Each) runs
	// concurrently (spec §4.5 step 5: "partition inputs across worker
	// tasks (ceil(n/threads) each)").
	threads int
}

// New creates a Sharder. finder must already be open over the same
// inputs (in the same order) as inputs. totalShards is the number of
// coarse-grained output shards table.NumShards() is divided into;
// threads bounds the copy phase's concurrency.
func New(ctx context.Context, finder *safecut.Finder, table *shardtable.Table, inputs []safecut.Input, refs *refcache.Cache, sink *metrics.Sink, totalShards, threads int) *Sharder {
	return &Sharder{ctx: ctx, finder: finder, table: table, inputs: inputs, refs: refs, sink: sink, totalShards: totalShards, threads: threads}
}

// shardsAtATime validates shardIndex against s.totalShards and the
// shards table, then returns how many consecutive shards-table rows
// each output shard covers (spec §4.5 step 1).
func (s *Sharder) shardsAtATime(shardIndex int) (int, error) {
	total := s.table.NumShards()
	if s.totalShards <= 0 || s.totalShards > total {
		return 0, errors.E(fmt.Sprintf("sharder: shards-total %d must be in (0,%d]", s.totalShards, total))
	}
	if total%s.totalShards != 0 {
		return 0, errors.E(fmt.Sprintf("sharder: shards-table has %d rows, not a multiple of shards-total %d", total, s.totalShards))
	}
	if shardIndex < 0 || shardIndex >= s.totalShards {
		return 0, errors.E(fmt.Sprintf("sharder: shard-index %d out of range [0,%d)", shardIndex, s.totalShards))
	}
	return total / s.totalShards, nil
}

// Boundary resolves the begin and end safe-cut positions for output
// shard shardIndex, re-seeking the shared Finder's readers via the
// shards table's mindex entries for both boundaries. Exported so
// callers (the CLI's -dry-run mode) can inspect a shard's cuts without
// performing the copy.
func (s *Sharder) Boundary(shardIndex int) (begin position.Position, beginOffsets []int64, end *position.Position, endOffsets []int64, err error) {
	shardsAtATime, err := s.shardsAtATime(shardIndex)
	if err != nil {
		return
	}
	beginRow := shardIndex * shardsAtATime

	if err = s.finder.Init(beginRow); err != nil {
		return
	}
	begin, err = s.finder.FindSafeCut(s.table.Shards[beginRow])
	if err != nil {
		return
	}
	beginOffsets = make([]int64, s.finder.NumInputs())
	for i := range beginOffsets {
		if beginOffsets[i], err = s.finder.ReaderOffset(i); err != nil {
			return
		}
	}

	endRow := (shardIndex + 1) * shardsAtATime
	if endRow >= s.totalShards*shardsAtATime {
		return
	}
	if err = s.finder.Init(endRow); err != nil {
		return
	}
	endCut, ferr := s.finder.FindSafeCut(s.table.Shards[endRow])
	if ferr != nil {
		err = ferr
		return
	}
	end = &endCut
	endOffsets = make([]int64, s.finder.NumInputs())
	for i := range endOffsets {
		if endOffsets[i], err = s.finder.ReaderOffset(i); err != nil {
			return
		}
	}
	return
}

// Shard writes shard shardIdx of every input file to the path namer
// produces, splicing boundary records as needed so each output is a
// valid, self-contained variant file.
func (s *Sharder) Shard(shardIdx int, namer OutputNamer) error {
	runStart := time.Now()

	initStart := time.Now()
	begin, beginOffsets, end, endOffsets, err := s.Boundary(shardIdx)
	initDur := time.Since(initStart)
	if err != nil {
		return errors.E(err, "sharder: resolve cuts for shard", shardIdx)
	}
	vlog.Infof("gvcfshard: shard %d: begin=%s end=%v", shardIdx, begin, end)

	writeStart := time.Now()
	refQueriesBefore := s.refs.Queries()
	err = traverse.T{Limit: s.threads}.Each(len(s.inputs), func(i int) error {
		return s.copyOne(shardIdx, i, begin, beginOffsets[i], end, endOffsetFor(endOffsets, i), namer)
	})
	writeDur := time.Since(writeStart)
	if err != nil {
		return err
	}
	s.sink.AddRefQueries(s.refs.Queries() - refQueriesBefore)

	endCut := "null"
	if end != nil {
		endCut = end.String()
	}
	s.sink.SetRunInfo(shardIdx, s.totalShards, len(s.inputs), s.threads, begin.String(), endCut)
	s.sink.SetDurations(initDur, writeDur, time.Since(runStart))
	return nil
}

func endOffsetFor(endOffsets []int64, i int) int64 {
	if endOffsets == nil {
		return 0
	}
	return endOffsets[i]
}

func (s *Sharder) copyOne(shardIdx, inputIdx int, begin position.Position, beginOffset int64, end *position.Position, endOffset int64, namer OutputNamer) error {
	start := time.Now()

	reader := s.finder.Reader(inputIdx)

	outPath := namer(shardIdx, inputIdx)
	out, cerr := file.Create(s.ctx, outPath)
	if cerr != nil {
		return errors.E(cerr, "sharder: create", outPath)
	}

	digest := seahash.New()
	w := out.Writer(s.ctx)
	tee := &teeWriter{w: w, h: digest}

	n, err := reader.Copy(beginOffset, begin, endOffset, end, s.refs, tee)
	closeErr := out.Close(s.ctx)
	if err != nil {
		return errors.E(err, "sharder: copy", outPath)
	}
	if closeErr != nil {
		return errors.E(closeErr, "sharder: close", outPath)
	}

	s.sink.RecordShard(beginOffset, endOffset, time.Since(start), n)
	s.sink.RecordChecksum(outPath, digest.Sum64())
	return nil
}

type teeWriter struct {
	w interface {
		Write(p []byte) (int, error)
	}
	h interface {
		Write(p []byte) (int, error)
	}
}

func (t *teeWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err == nil {
		_, _ = t.h.Write(p[:n])
	}
	return n, err
}
