// gvcfshard splits a set of aligned variant files into one shard each,
// at a position guaranteed not to split any multi-base deletion record
// in any input file.
//
// Usage: gvcfshard -shards-table=table.tsv -shards-total=4 -shard-index=3
//          -variants=a.gvcf,b.gvcf -mindexes=a.mindex,b.mindex
//          -reference=ref.fa -out-dir=/tmp/out
package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/gvcfshard/metrics"
	"github.com/grailbio/gvcfshard/refcache"
	"github.com/grailbio/gvcfshard/safecut"
	"github.com/grailbio/gvcfshard/sharder"
	"github.com/grailbio/gvcfshard/shardtable"
)

var (
	shardsTableFlag = flag.String("shards-table", "", "Path to the shards-table file (required)")
	shardsTotalFlag = flag.Int("shards-total", 0, "Number of coarse-grained output shards to divide the shards table into; must evenly divide the table's row count (required)")
	shardIndexFlag  = flag.Int("shard-index", 0, "Index in [0,shards-total) of the shard to produce (required)")
	variantsFlag    = flag.String("variants", "", "Comma-separated list of input variant file paths (required)")
	mindexesFlag    = flag.String("mindexes", "", "Comma-separated list of mindex file paths, one per -variants entry, same order (required)")
	referenceFlag   = flag.String("reference", "", "Path to the reference FASTA; a samtools-style .fai index is expected alongside it (required unless -dry-run)")
	outDirFlag      = flag.String("out-dir", "", "Directory to write this shard's per-input output files to (required unless -dry-run)")
	threadsFlag     = flag.Int("threads", 1, "Parallelism for the safe-cut search's per-input fan-out")
	prefetchFlag    = flag.Int("mindex-prefetch", 0, "Mindex forward-prefetch window (0 selects the package default)")
	metricsFlag     = flag.String("metrics", "", "Path to write the run's metrics TSV to; empty disables metrics output")
	dryRunFlag      = flag.Bool("dry-run", false, "Compute and print the begin/end safe cuts without copying any bytes")
)

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func main() {
	flag.Usage = func() {
		os.Stderr.WriteString(`Usage:
gvcfshard -shards-table=<path> -shards-total=<n> -shard-index=<i>
          -variants=<a,b,...> -mindexes=<a,b,...> -reference=<path>
          -out-dir=<dir>

Produces output shard <i> of every input variant file. -shards-total
divides the shards-table's rows into <n> equal-sized groups of
consecutive rows (the table's row count must be a multiple of <n>);
output shard <i> covers the byte range of each input between the
safe-cut position at the first row of group <i> and the safe-cut
position at the first row of group <i+1> (or end of file, for the last
shard), splicing any reference-block record that straddles a cut so
each output remains a well-formed, self-contained sequence of records.
A position is safe to cut only if it never falls strictly inside a
multi-base deletion record in any of the -variants files.

With -dry-run, only the begin/end cuts and their per-file byte offsets
are computed and logged; no output files are written.
`)
		flag.PrintDefaults()
	}

	shutdown := grail.Init()
	defer shutdown()

	if *shardsTableFlag == "" || *shardsTotalFlag <= 0 || *variantsFlag == "" || *mindexesFlag == "" {
		flag.Usage()
		os.Exit(1)
	}

	variantPaths := splitList(*variantsFlag)
	mindexPaths := splitList(*mindexesFlag)
	if len(variantPaths) != len(mindexPaths) {
		log.Panicf("gvcfshard: -variants has %d entries but -mindexes has %d; they must pair up 1:1",
			len(variantPaths), len(mindexPaths))
	}
	if !*dryRunFlag && *outDirFlag == "" {
		flag.Usage()
		os.Exit(1)
	}

	ctx := vcontext.Background()

	table, err := shardtable.Load(ctx, *shardsTableFlag)
	if err != nil {
		log.Panicf("gvcfshard: load shards table: %v", err)
	}
	if *shardIndexFlag < 0 || *shardIndexFlag >= *shardsTotalFlag {
		log.Panicf("gvcfshard: -shard-index %d out of range [0,%d)", *shardIndexFlag, *shardsTotalFlag)
	}
	if *shardsTotalFlag > table.NumShards() || table.NumShards()%*shardsTotalFlag != 0 {
		log.Panicf("gvcfshard: -shards-total %d must evenly divide the shards table's %d rows",
			*shardsTotalFlag, table.NumShards())
	}

	inputs := make([]safecut.Input, len(variantPaths))
	for i := range variantPaths {
		inputs[i] = safecut.Input{VariantPath: variantPaths[i], MindexPath: mindexPaths[i]}
	}

	finder, err := safecut.Open(ctx, inputs, table.Order, *prefetchFlag, *threadsFlag)
	if err != nil {
		log.Panicf("gvcfshard: open inputs: %v", err)
	}
	defer func() {
		if cerr := finder.Close(); cerr != nil {
			log.Error.Printf("gvcfshard: close inputs: %v", cerr)
		}
	}()

	sink := metrics.NewSink()

	var refs *refcache.Cache
	if *referenceFlag != "" {
		refs = refcache.NewCache(func() (refcache.Backend, error) {
			return refcache.OpenFasta(ctx, *referenceFlag, *referenceFlag+".fai")
		})
	} else {
		refs = refcache.NewCache(func() (refcache.Backend, error) {
			return nil, errors.E("gvcfshard: boundary splice needs a reference base but -reference was not given")
		})
	}

	sh := sharder.New(ctx, finder, table, inputs, refs, sink, *shardsTotalFlag, *threadsFlag)

	if *dryRunFlag {
		runDryRun(sh, *shardIndexFlag)
		return
	}

	if err := probeWrite(ctx, *outDirFlag, variantPaths); err != nil {
		log.Panicf("gvcfshard: pre-flight probe write: %v", err)
	}

	namer := func(shardIdx, inputIdx int) string {
		return outputPath(*outDirFlag, shardIdx, variantPaths[inputIdx])
	}
	if err := sh.Shard(*shardIndexFlag, namer); err != nil {
		log.Panicf("gvcfshard: shard %d: %v", *shardIndexFlag, err)
	}

	if *metricsFlag != "" {
		if err := writeMetrics(ctx, *metricsFlag, sink); err != nil {
			log.Panicf("gvcfshard: write metrics: %v", err)
		}
	}
}

// runDryRun logs the begin/end safe cuts for shardIdx without copying
// any bytes, for operators sanity-checking a shards table against real
// input files before committing to a full run.
func runDryRun(sh *sharder.Sharder, shardIdx int) {
	begin, beginOffsets, end, endOffsets, err := sh.Boundary(shardIdx)
	if err != nil {
		log.Panicf("gvcfshard: dry-run: resolve cuts for shard %d: %v", shardIdx, err)
	}
	log.Printf("gvcfshard: dry-run: shard %d begin=%s offsets=%v end=%v offsets=%v",
		shardIdx, begin, beginOffsets, end, endOffsets)
}

// probeWrite writes and removes a zero-byte file next to each intended
// output so a permissions or missing-directory problem is caught before
// any real shard work starts, instead of failing partway through a
// parallel copy phase.
func probeWrite(ctx context.Context, outDir string, variantPaths []string) error {
	for _, variantPath := range variantPaths {
		probePath := outputPath(outDir, 0, variantPath) + ".probe"
		f, err := file.Create(ctx, probePath)
		if err != nil {
			return err
		}
		if err := f.Close(ctx); err != nil {
			return err
		}
		if err := file.Remove(ctx, probePath); err != nil {
			return err
		}
	}
	return nil
}

func outputPath(outDir string, shardIdx int, variantPath string) string {
	base := variantPath
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return outDir + "/" + shardOf(shardIdx) + "." + base
}

func shardOf(shardIdx int) string {
	return "shard-" + strconv.Itoa(shardIdx)
}

func writeMetrics(ctx context.Context, path string, sink *metrics.Sink) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	w := f.Writer(ctx)
	if _, err := w.Write([]byte(sink.String())); err != nil {
		_ = f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}
