package refcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFasta writes a FASTA file with lineWidth bases per line and its
// samtools .fai index, and returns both paths.
func writeFasta(t *testing.T, dir, name string, seqs map[string]string, lineWidth int) (string, string) {
	t.Helper()
	fastaPath := filepath.Join(dir, name)
	faiPath := fastaPath + ".fai"

	var fasta, fai string
	var offset int64
	// Iterate in a fixed order so the test's expectations are stable.
	for _, seqName := range []string{"chr1", "chr2"} {
		seq, ok := seqs[seqName]
		if !ok {
			continue
		}
		header := ">" + seqName + "\n"
		fasta += header
		offset += int64(len(header))
		seqOffset := offset
		for i := 0; i < len(seq); i += lineWidth {
			end := i + lineWidth
			if end > len(seq) {
				end = len(seq)
			}
			line := seq[i:end] + "\n"
			fasta += line
			offset += int64(len(line))
		}
		fai += seqName + "\t" + itoa(len(seq)) + "\t" + itoa(int(seqOffset)) + "\t" +
			itoa(lineWidth) + "\t" + itoa(lineWidth+1) + "\n"
	}

	require.NoError(t, os.WriteFile(fastaPath, []byte(fasta), 0o644))
	require.NoError(t, os.WriteFile(faiPath, []byte(fai), 0o644))
	return fastaPath, faiPath
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestFastaBackendBaseAtSingleLine(t *testing.T) {
	dir := t.TempDir()
	fastaPath, faiPath := writeFasta(t, dir, "ref.fa", map[string]string{
		"chr1": "ACGTACGTAC",
	}, 60)

	ctx := context.Background()
	backend, err := OpenFasta(ctx, fastaPath, faiPath)
	require.NoError(t, err)

	b, err := backend.BaseAt("chr1", 1)
	require.NoError(t, err)
	require.Equal(t, byte('A'), b)

	b, err = backend.BaseAt("chr1", 5)
	require.NoError(t, err)
	require.Equal(t, byte('A'), b)

	b, err = backend.BaseAt("chr1", 10)
	require.NoError(t, err)
	require.Equal(t, byte('C'), b)
}

func TestFastaBackendBaseAtSpansMultipleLines(t *testing.T) {
	dir := t.TempDir()
	// 70 bases, wrapped at 60 per line: base 61 is the first base of the
	// second line, after one embedded newline.
	seq := ""
	for i := 0; i < 70; i++ {
		seq += string([]byte{"ACGT"[i%4]})
	}
	fastaPath, faiPath := writeFasta(t, dir, "ref.fa", map[string]string{
		"chr1": seq,
	}, 60)

	ctx := context.Background()
	backend, err := OpenFasta(ctx, fastaPath, faiPath)
	require.NoError(t, err)

	b, err := backend.BaseAt("chr1", 61)
	require.NoError(t, err)
	require.Equal(t, seq[60], b)

	b, err = backend.BaseAt("chr1", 70)
	require.NoError(t, err)
	require.Equal(t, seq[69], b)
}

func TestFastaBackendMultipleContigs(t *testing.T) {
	dir := t.TempDir()
	fastaPath, faiPath := writeFasta(t, dir, "ref.fa", map[string]string{
		"chr1": "AAAAAAAAAA",
		"chr2": "CCCCCCCCCC",
	}, 60)

	ctx := context.Background()
	backend, err := OpenFasta(ctx, fastaPath, faiPath)
	require.NoError(t, err)

	b, err := backend.BaseAt("chr2", 1)
	require.NoError(t, err)
	require.Equal(t, byte('C'), b)
}

func TestFastaBackendUnknownContig(t *testing.T) {
	dir := t.TempDir()
	fastaPath, faiPath := writeFasta(t, dir, "ref.fa", map[string]string{
		"chr1": "ACGT",
	}, 60)

	ctx := context.Background()
	backend, err := OpenFasta(ctx, fastaPath, faiPath)
	require.NoError(t, err)

	_, err = backend.BaseAt("chrX", 1)
	require.Error(t, err)
}

func TestFastaBackendViaCache(t *testing.T) {
	dir := t.TempDir()
	fastaPath, faiPath := writeFasta(t, dir, "ref.fa", map[string]string{
		"chr1": "ACGTACGTAC",
	}, 60)

	ctx := context.Background()
	opened := 0
	cache := NewCache(func() (Backend, error) {
		opened++
		return OpenFasta(ctx, fastaPath, faiPath)
	})

	b, err := cache.BaseAt("chr1", 1)
	require.NoError(t, err)
	require.Equal(t, byte('A'), b)

	b, err = cache.BaseAt("chr1", 1)
	require.NoError(t, err)
	require.Equal(t, byte('A'), b)

	require.Equal(t, 1, opened)
	require.Equal(t, int64(2), cache.Queries())
}
