package position

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildOrder(contigs ...string) *ContigOrder {
	b := NewBuilder()
	for _, c := range contigs {
		b.Add(c)
	}
	return b.Build()
}

func TestOrderingSameContig(t *testing.T) {
	order := buildOrder("chr1", "chr2")
	p := New(order, "chr1", 10)
	q := New(order, "chr1", 20)
	require.True(t, p.LT(q))
	require.True(t, q.GT(p))
	require.False(t, p.Equal(q))
}

func TestOrderingDifferentContig(t *testing.T) {
	order := buildOrder("chr1", "chr2", "chr3")
	p := New(order, "chr1", 1000000)
	q := New(order, "chr2", 1)
	require.True(t, p.LT(q), "chr1 sorts before chr2 regardless of pos")
}

func TestEqual(t *testing.T) {
	order := buildOrder("chr1")
	p := New(order, "chr1", 5)
	q := New(order, "chr1", 5)
	require.Equal(t, 0, p.Compare(q))
	require.True(t, p.Equal(q))
}

func TestCrossOrderPanicsUnlessEqual(t *testing.T) {
	order1 := buildOrder("chr1", "chr2")
	order2 := buildOrder("chr2", "chr1")
	p := New(order1, "chr1", 5)
	q := New(order2, "chr2", 9)

	require.Panics(t, func() { p.Compare(q) })

	// Equal (contig, pos) pairs compare equal even across ContigOrder
	// instances, since Compare short-circuits before touching the order.
	r := New(order2, "chr1", 5)
	require.Equal(t, 0, p.Compare(r))
}

func TestNewRejectsNonPositivePos(t *testing.T) {
	order := buildOrder("chr1")
	require.Panics(t, func() { New(order, "chr1", 0) })
	require.Panics(t, func() { New(order, "chr1", -1) })
}

func TestMax(t *testing.T) {
	order := buildOrder("chr1")
	p := New(order, "chr1", 5)
	q := New(order, "chr1", 9)
	require.Equal(t, q, Max(p, q))
	require.Equal(t, q, Max(q, p))
}

func TestString(t *testing.T) {
	order := buildOrder("chr1")
	p := New(order, "chr1", 379)
	require.Equal(t, "chr1:379", p.String())
}
