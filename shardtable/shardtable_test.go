package shardtable

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	data := "" +
		"# comment, ignored\n" +
		"chr1\t1\t100\n" +
		"chr1\t101\t200\tchr1\t101\t200\n" +
		"chr2\t1\t50\n"
	table, err := parse(strings.NewReader(data), "test")
	require.NoError(t, err)
	require.Equal(t, 3, table.NumShards())
	require.Equal(t, "chr1", table.Shards[0].Contig)
	require.Equal(t, int64(1), table.Shards[0].Pos)
	require.Equal(t, "chr1", table.Shards[1].Contig)
	require.Equal(t, int64(101), table.Shards[1].Pos)
	require.Equal(t, "chr2", table.Shards[2].Contig)

	i, ok := table.Order.Index("chr2")
	require.True(t, ok)
	require.Equal(t, 1, i)
}

func TestParseRejectsBadFieldCount(t *testing.T) {
	_, err := parse(strings.NewReader("chr1\t1\n"), "test")
	require.Error(t, err)

	_, err = parse(strings.NewReader("chr1\t1\t100\tchr2\t1\n"), "test")
	require.Error(t, err)
}

func TestParseRejectsBadStart(t *testing.T) {
	_, err := parse(strings.NewReader("chr1\tnotanumber\t100\n"), "test")
	require.Error(t, err)
}

func TestParseEmptyLinesIgnored(t *testing.T) {
	data := "chr1\t1\t100\n\n\nchr1\t200\t300\n"
	table, err := parse(strings.NewReader(data), "test")
	require.NoError(t, err)
	require.Equal(t, 2, table.NumShards())
}
