// Package shardtable parses the externally-supplied shards table that
// drives SafeCutFinder: an ordered sequence of genomic positions, one per
// shard, read from a simple tab-delimited text file (spec.md §3, §6).
package shardtable

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/gvcfshard/position"
	"github.com/klauspost/compress/gzip"
)

// Table holds the parsed shards-table: one Position per non-comment line
// (only the line's first triple contributes a Position, per spec §3), plus
// the ContigOrder built from a single pre-scan in first-appearance order.
type Table struct {
	Shards []position.Position
	Order  *position.ContigOrder
}

// NumShards returns the number of rows in the table (spec's
// "numShardsInFile").
func (t *Table) NumShards() int {
	return len(t.Shards)
}

// Load reads and parses the shards-table file at path. The file may
// optionally be gzip-compressed (detected by a ".gz" suffix), mirroring
// encoding/fastq's optional gzip wrapping of its own line-oriented input;
// the shards-table format itself is always plain tab-delimited text (spec
// §6), comment lines ('#' prefix) are ignored, and every non-comment line
// must carry a tab-separated field count that is a nonzero multiple of 3.
func Load(ctx context.Context, path string) (*Table, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "shardtable: open", path)
	}
	defer func() {
		_ = f.Close(ctx)
	}()

	var r io.Reader = f.Reader(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.E(err, "shardtable: gzip", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return parse(r, path)
}

func parse(r io.Reader, path string) (*Table, error) {
	builder := position.NewBuilder()
	var rows []struct {
		contig string
		start  int64
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 || len(fields)%3 != 0 {
			return nil, errors.E(fmt.Sprintf(
				"shardtable: %s:%d: malformed line, expected a nonzero multiple of 3 tab-separated fields, got %d: %q",
				path, lineNo, len(fields), line))
		}
		contig := fields[0]
		start, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("shardtable: %s:%d: bad START field %q", path, lineNo, fields[1]))
		}
		builder.Add(contig)
		rows = append(rows, struct {
			contig string
			start  int64
		}{contig, start})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "shardtable: scan", path)
	}

	order := builder.Build()
	shards := make([]position.Position, len(rows))
	for i, row := range rows {
		shards[i] = position.New(order, row.contig, row.start)
	}
	return &Table{Shards: shards, Order: order}, nil
}
