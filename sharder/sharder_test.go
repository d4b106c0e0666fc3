package sharder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grailbio/gvcfshard/metrics"
	"github.com/grailbio/gvcfshard/mindex"
	"github.com/grailbio/gvcfshard/position"
	"github.com/grailbio/gvcfshard/refcache"
	"github.com/grailbio/gvcfshard/safecut"
	"github.com/grailbio/gvcfshard/shardtable"
)

func writeFile(t *testing.T, dir, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeMindex(t *testing.T, dir, name string, entries []int64) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, mindex.Write(&buf, entries))
	return writeFile(t, dir, name, buf.String())
}

func constantRef(base byte) *refcache.Cache {
	return refcache.NewCache(func() (refcache.Backend, error) {
		return refcache.BackendFunc(func(contig string, pos int64) (byte, error) {
			return base, nil
		}), nil
	})
}

// TestShardTwoShardsCoverWholeFile covers spec.md's core property: for a
// single input, sharding into two shards at a mid-file boundary
// reproduces every input record exactly once across the two outputs,
// splicing any record that straddles the cut.
func TestShardTwoShardsCoverWholeFile(t *testing.T) {
	dir := t.TempDir()
	vcfContent := "chr1\t1\t.\tA\t.\t.\t.\tEND=99\n" +
		"chr1\t100\t.\tC\t.\t.\t.\tEND=199\n" +
		"chr1\t200\t.\tG\tT\t.\t.\t.\n"
	vcfPath := writeFile(t, dir, "a.gvcf", vcfContent)
	miPath := writeMindex(t, dir, "a.mindex", []int64{0, 0, 0})

	order := position.NewBuilder()
	order.Add("chr1")
	builtOrder := order.Build()

	table := &shardtable.Table{
		Order: builtOrder,
		Shards: []position.Position{
			position.New(builtOrder, "chr1", 1),
			position.New(builtOrder, "chr1", 150),
			position.New(builtOrder, "chr1", 300),
		},
	}

	inputs := []safecut.Input{{VariantPath: vcfPath, MindexPath: miPath}}
	ctx := context.Background()
	finder, err := safecut.Open(ctx, inputs, builtOrder, 0, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, finder.Close()) }()

	sink := metrics.NewSink()
	refs := constantRef('N')
	// 3 shards-table rows, shards-total=3: one table row per output shard,
	// matching the per-row granularity this test's two Shard calls exercise.
	sh := New(ctx, finder, table, inputs, refs, sink, 3, 1)

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	namer := func(shardIdx, inputIdx int) string {
		return filepath.Join(outDir, "shard"+strconv.Itoa(shardIdx)+".gvcf")
	}

	require.NoError(t, sh.Shard(0, namer))
	require.NoError(t, sh.Shard(1, namer))

	shard0, err := os.ReadFile(filepath.Join(outDir, "shard0.gvcf"))
	require.NoError(t, err)
	shard1, err := os.ReadFile(filepath.Join(outDir, "shard1.gvcf"))
	require.NoError(t, err)

	require.Contains(t, string(shard0), "chr1\t1\t.\tA\t.\t.\t.\tEND=99")
	require.Contains(t, string(shard0), "END=149")
	require.Contains(t, string(shard1), "chr1\t150")
	require.Contains(t, string(shard1), "chr1\t200\t.\tG\tT\t.\t.\t.")

	require.Equal(t, int64(2), sink.Shards)
	require.Len(t, sink.Checksums, 2)

	require.Equal(t, int64(1), sink.ShardNumber)
	require.Equal(t, int64(3), sink.ShardsTotal)
	require.Equal(t, int64(1), sink.VCFCount)
	require.Equal(t, "chr1:300", sink.EndCut)
}

// TestShardCoarseGroupingCoversMultipleRows covers spec.md §4.5 step 1's
// "shardsAtATime = numShards()/totalShards" grouping: with a 4-row
// shards table and -shards-total=2, each output shard spans 2
// consecutive table rows, skipping the intervening row as a boundary.
func TestShardCoarseGroupingCoversMultipleRows(t *testing.T) {
	dir := t.TempDir()
	vcfContent := "chr1\t1\t.\tA\t.\t.\t.\tEND=99\n" +
		"chr1\t100\t.\tC\t.\t.\t.\tEND=199\n" +
		"chr1\t200\t.\tG\tT\t.\t.\t.\n"
	vcfPath := writeFile(t, dir, "a.gvcf", vcfContent)
	miPath := writeMindex(t, dir, "a.mindex", []int64{0, 0, 0, 0})

	order := position.NewBuilder()
	order.Add("chr1")
	builtOrder := order.Build()

	table := &shardtable.Table{
		Order: builtOrder,
		Shards: []position.Position{
			position.New(builtOrder, "chr1", 1),
			position.New(builtOrder, "chr1", 101),
			position.New(builtOrder, "chr1", 150),
			position.New(builtOrder, "chr1", 300),
		},
	}

	inputs := []safecut.Input{{VariantPath: vcfPath, MindexPath: miPath}}
	ctx := context.Background()
	finder, err := safecut.Open(ctx, inputs, builtOrder, 0, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, finder.Close()) }()

	sink := metrics.NewSink()
	refs := constantRef('N')
	sh := New(ctx, finder, table, inputs, refs, sink, 2, 1)

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	namer := func(shardIdx, inputIdx int) string {
		return filepath.Join(outDir, "shard"+strconv.Itoa(shardIdx)+".gvcf")
	}

	require.NoError(t, sh.Shard(0, namer))
	require.NoError(t, sh.Shard(1, namer))

	shard0, err := os.ReadFile(filepath.Join(outDir, "shard0.gvcf"))
	require.NoError(t, err)
	shard1, err := os.ReadFile(filepath.Join(outDir, "shard1.gvcf"))
	require.NoError(t, err)

	// Row 101 (table.Shards[1]) is skipped as a boundary: shard 0 runs
	// all the way to row 2's position 150, shard 1 to end of file.
	require.Contains(t, string(shard0), "chr1\t1\t.\tA\t.\t.\t.\tEND=99")
	require.Contains(t, string(shard0), "END=149")
	require.Contains(t, string(shard1), "chr1\t150")
	require.Contains(t, string(shard1), "chr1\t200\t.\tG\tT\t.\t.\t.")
}

func TestShardsAtATimeRejectsNonDivisor(t *testing.T) {
	dir := t.TempDir()
	vcfPath := writeFile(t, dir, "a.gvcf", "chr1\t1\t.\tA\t.\t.\t.\tEND=99\n")
	miPath := writeMindex(t, dir, "a.mindex", []int64{0, 0, 0})

	order := position.NewBuilder()
	order.Add("chr1")
	builtOrder := order.Build()
	table := &shardtable.Table{
		Order: builtOrder,
		Shards: []position.Position{
			position.New(builtOrder, "chr1", 1),
			position.New(builtOrder, "chr1", 101),
			position.New(builtOrder, "chr1", 201),
		},
	}

	inputs := []safecut.Input{{VariantPath: vcfPath, MindexPath: miPath}}
	ctx := context.Background()
	finder, err := safecut.Open(ctx, inputs, builtOrder, 0, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, finder.Close()) }()

	sh := New(ctx, finder, table, inputs, constantRef('N'), metrics.NewSink(), 2, 1)
	_, _, _, _, err = sh.Boundary(0)
	require.Error(t, err)
}

func TestShardsAtATimeRejectsOutOfRangeShardIndex(t *testing.T) {
	dir := t.TempDir()
	vcfPath := writeFile(t, dir, "a.gvcf", "chr1\t1\t.\tA\t.\t.\t.\tEND=99\n")
	miPath := writeMindex(t, dir, "a.mindex", []int64{0, 0, 0})

	order := position.NewBuilder()
	order.Add("chr1")
	builtOrder := order.Build()
	table := &shardtable.Table{
		Order: builtOrder,
		Shards: []position.Position{
			position.New(builtOrder, "chr1", 1),
			position.New(builtOrder, "chr1", 101),
			position.New(builtOrder, "chr1", 201),
		},
	}

	inputs := []safecut.Input{{VariantPath: vcfPath, MindexPath: miPath}}
	ctx := context.Background()
	finder, err := safecut.Open(ctx, inputs, builtOrder, 0, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, finder.Close()) }()

	sh := New(ctx, finder, table, inputs, constantRef('N'), metrics.NewSink(), 3, 1)
	_, _, _, _, err = sh.Boundary(3)
	require.Error(t, err)
}
