// Package metrics collects and renders the counters, durations, and
// per-output checksums a gvcfshard run reports (spec.md §6), in the
// teacher's Metrics/MetricsCollection shape (markduplicates/metrics.go):
// a plain struct accumulated under a mutex, with a String()/TSV
// rendering and an Add-style merge.
package metrics

import (
	"fmt"
	"sync"
	"time"
)

// Stat accumulates the first, minimum, maximum, and average of a stream
// of int64 samples (spec §6: "per-offset-family (min/avg/max/first)
// summaries").
type Stat struct {
	count int64
	first int64
	min   int64
	max   int64
	sum   int64
}

// Observe records one sample.
func (s *Stat) Observe(v int64) {
	if s.count == 0 {
		s.first = v
		s.min = v
		s.max = v
	} else {
		if v < s.min {
			s.min = v
		}
		if v > s.max {
			s.max = v
		}
	}
	s.sum += v
	s.count++
}

// Count returns the number of samples observed.
func (s *Stat) Count() int64 { return s.count }

// First returns the first sample observed, or 0 if none.
func (s *Stat) First() int64 { return s.first }

// Min returns the minimum sample observed, or 0 if none.
func (s *Stat) Min() int64 { return s.min }

// Max returns the maximum sample observed, or 0 if none.
func (s *Stat) Max() int64 { return s.max }

// Avg returns the mean of all samples observed, or 0 if none.
func (s *Stat) Avg() float64 {
	if s.count == 0 {
		return 0
	}
	return float64(s.sum) / float64(s.count)
}

func (s *Stat) merge(other *Stat) {
	if other.count == 0 {
		return
	}
	if s.count == 0 {
		*s = *other
		return
	}
	if other.min < s.min {
		s.min = other.min
	}
	if other.max > s.max {
		s.max = other.max
	}
	s.sum += other.sum
	s.count += other.count
}

// String renders "first/min/avg/max" for one Stat family.
func (s *Stat) String() string {
	return fmt.Sprintf("%d/%d/%.1f/%d", s.first, s.min, s.Avg(), s.max)
}

// Sink accumulates the metrics for one gvcfshard run. It is safe for
// concurrent use from the parallel shard workers.
type Sink struct {
	mu sync.Mutex

	Shards       int64
	BytesWritten int64
	RefQueries   int64

	// ShardNumber, ShardsTotal, VCFCount, Threads, BeginCut, and EndCut
	// describe the run as a whole rather than any one input file, and are
	// set once via SetRunInfo (spec §6: shard_number, shards_total,
	// vcf_count, threads, begin_cut, end_cut).
	ShardNumber int64
	ShardsTotal int64
	VCFCount    int64
	Threads     int64
	BeginCut    string
	EndCut      string

	// InitDuration, WriteDuration, and TotalDuration are the wall time
	// spent resolving this shard's begin/end cuts, copying bytes out, and
	// the run overall (spec §6: init_s, write_s, total_s).
	InitDuration  time.Duration
	WriteDuration time.Duration
	TotalDuration time.Duration

	BeginCutOffsets Stat
	EndCutOffsets   Stat
	ShardDuration   Stat
	ShardBytes      Stat

	// Checksums maps each output shard path to the seahash digest of its
	// bytes, so a rerun with identical inputs can be verified to produce
	// byte-identical output (spec §6, §8 property: determinism).
	Checksums map[string]uint64
}

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{Checksums: make(map[string]uint64)}
}

// RecordShard records the outcome of sharding one (shard, input) pair:
// the begin and end cut byte offsets found in this input file, the wall
// time spent, and the bytes written.
func (s *Sink) RecordShard(beginOffset, endOffset int64, dur time.Duration, bytesWritten int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Shards++
	s.BytesWritten += bytesWritten
	s.BeginCutOffsets.Observe(beginOffset)
	s.EndCutOffsets.Observe(endOffset)
	s.ShardDuration.Observe(dur.Nanoseconds())
	s.ShardBytes.Observe(bytesWritten)
}

// AddRefQueries adds n to the running count of reference-base lookups
// (spec §6: "ref_queried").
func (s *Sink) AddRefQueries(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RefQueries += n
}

// SetRunInfo records the run-level fields that describe this shard
// rather than any one input file.
func (s *Sink) SetRunInfo(shardNumber, shardsTotal, vcfCount, threads int, beginCut, endCut string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ShardNumber = int64(shardNumber)
	s.ShardsTotal = int64(shardsTotal)
	s.VCFCount = int64(vcfCount)
	s.Threads = int64(threads)
	s.BeginCut = beginCut
	s.EndCut = endCut
}

// SetDurations records the wall time spent in the init (safe-cut
// resolution) phase, the write (copy) phase, and the run overall.
func (s *Sink) SetDurations(initDur, writeDur, totalDur time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InitDuration = initDur
	s.WriteDuration = writeDur
	s.TotalDuration = totalDur
}

// RecordChecksum records the seahash digest computed for an output
// shard's bytes.
func (s *Sink) RecordChecksum(path string, digest uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Checksums[path] = digest
}

// Merge folds other's counters into s.
func (s *Sink) Merge(other *Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	s.Shards += other.Shards
	s.BytesWritten += other.BytesWritten
	s.RefQueries += other.RefQueries
	s.BeginCutOffsets.merge(&other.BeginCutOffsets)
	s.EndCutOffsets.merge(&other.EndCutOffsets)
	s.ShardDuration.merge(&other.ShardDuration)
	s.ShardBytes.merge(&other.ShardBytes)
	for path, digest := range other.Checksums {
		s.Checksums[path] = digest
	}

	// Run-level fields describe one shard's run, not a per-file count, so
	// a merge takes other's values rather than summing them.
	if other.ShardsTotal != 0 {
		s.ShardNumber = other.ShardNumber
		s.ShardsTotal = other.ShardsTotal
		s.VCFCount = other.VCFCount
		s.Threads = other.Threads
		s.BeginCut = other.BeginCut
		s.EndCut = other.EndCut
		s.InitDuration = other.InitDuration
		s.WriteDuration = other.WriteDuration
		s.TotalDuration = other.TotalDuration
	}
}

// String renders a TSV summary suitable for a metrics file (spec §6).
func (s *Sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf(
		"shard_number\t%d\nshards_total\t%d\nvcf_count\t%d\nthreads\t%d\n"+
			"begin_cut\t%s\nend_cut\t%s\n"+
			"init_s\t%.3f\nwrite_s\t%.3f\ntotal_s\t%.3f\n"+
			"shards\t%d\nbytes_written\t%d\nref_queried\t%d\n"+
			"begin_cut_offset\t%s\nend_cut_offset\t%s\n"+
			"shard_duration_ns\t%s\nshard_bytes\t%s\n",
		s.ShardNumber, s.ShardsTotal, s.VCFCount, s.Threads,
		s.formatCut(s.BeginCut), s.formatCut(s.EndCut),
		s.InitDuration.Seconds(), s.WriteDuration.Seconds(), s.TotalDuration.Seconds(),
		s.Shards, s.BytesWritten, s.RefQueries,
		s.BeginCutOffsets.String(), s.EndCutOffsets.String(),
		s.ShardDuration.String(), s.ShardBytes.String())
}

// formatCut renders an empty begin/end cut as "null" (spec §6: end_cut is
// "string or \"null\"" when there is no next shard; an empty BeginCut
// should not normally occur, but the same rendering is harmless for it).
func (s *Sink) formatCut(cut string) string {
	if cut == "" {
		return "null"
	}
	return cut
}
