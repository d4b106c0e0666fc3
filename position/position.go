// Package position implements the genomic coordinate used throughout
// gvcfshard: an immutable (contig, 1-based pos) pair ordered by a shared
// ContigOrder.
package position

import "fmt"

// ContigOrder assigns a small integer index to each contig name, in the
// order the contigs first appear in a shards-table file. Comparing the
// index of two contigs is much cheaper than comparing their names, and
// every Position derived from one shards-table shares a single ContigOrder
// instance.
//
// A ContigOrder is built once (see Builder) and is read-only afterward, so
// it is safe to share across goroutines.
type ContigOrder struct {
	index map[string]int
	names []string
}

// Builder accumulates contigs in first-appearance order and produces an
// immutable ContigOrder.
type Builder struct {
	order ContigOrder
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{order: ContigOrder{index: map[string]int{}}}
}

// Add records contig if it hasn't been seen before. It is idempotent.
func (b *Builder) Add(contig string) {
	if _, ok := b.order.index[contig]; ok {
		return
	}
	b.order.index[contig] = len(b.order.names)
	b.order.names = append(b.order.names, contig)
}

// Build returns the finished ContigOrder. The Builder must not be used
// afterward.
func (b *Builder) Build() *ContigOrder {
	return &b.order
}

// Index returns the first-appearance rank of contig, and whether contig was
// seen at all.
func (c *ContigOrder) Index(contig string) (int, bool) {
	i, ok := c.index[contig]
	return i, ok
}

// NumContigs returns the number of distinct contigs registered.
func (c *ContigOrder) NumContigs() int {
	return len(c.names)
}

// Position is an immutable (contig, 1-based pos) coordinate, ordered
// relative to a shared *ContigOrder.
//
// Position values sharing the same ContigOrder total-order: same contig
// compares by Pos; different contigs compare by the ContigOrder's
// first-appearance rank. Comparing two Positions built from different
// ContigOrder instances is a programmer error (see compareOrders).
type Position struct {
	Contig string
	Pos    int64
	order  *ContigOrder
}

// New creates a Position. It panics if pos < 1: genomic positions are
// always 1-based.
func New(order *ContigOrder, contig string, pos int64) Position {
	if pos < 1 {
		panic(fmt.Sprintf("position: pos must be >= 1, got %d for contig %q", pos, contig))
	}
	return Position{Contig: contig, Pos: pos, order: order}
}

// Order returns the ContigOrder this Position was built against.
func (p Position) Order() *ContigOrder {
	return p.order
}

// Equal reports structural equality over (contig, pos), ignoring the
// ContigOrder (two Positions from different orders can still be Equal if
// their contig name and pos match; only Compare/Less require a shared
// order).
func (p Position) Equal(q Position) bool {
	return p.Contig == q.Contig && p.Pos == q.Pos
}

func (p Position) compareOrders(q Position) {
	if p.order != q.order {
		panic(fmt.Sprintf("position: comparing positions from different ContigOrders: %+v vs %+v", p, q))
	}
}

// Compare returns <0, 0, or >0 as p is less than, equal to, or greater than
// q. p and q must share the same ContigOrder (same instance), else Compare
// panics.
func (p Position) Compare(q Position) int {
	if p.Equal(q) {
		return 0
	}
	p.compareOrders(q)
	if p.Contig == q.Contig {
		switch {
		case p.Pos < q.Pos:
			return -1
		case p.Pos > q.Pos:
			return 1
		default:
			return 0
		}
	}
	pi, pok := p.order.Index(p.Contig)
	qi, qok := p.order.Index(q.Contig)
	if !pok || !qok {
		panic(fmt.Sprintf("position: contig not registered in ContigOrder: %+v vs %+v", p, q))
	}
	return pi - qi
}

// LT returns p < q.
func (p Position) LT(q Position) bool { return p.Compare(q) < 0 }

// LE returns p <= q.
func (p Position) LE(q Position) bool { return p.Compare(q) <= 0 }

// GT returns p > q.
func (p Position) GT(q Position) bool { return p.Compare(q) > 0 }

// GE returns p >= q.
func (p Position) GE(q Position) bool { return p.Compare(q) >= 0 }

// Max returns the greater of p and q under Compare.
func Max(p, q Position) Position {
	if p.GE(q) {
		return p
	}
	return q
}

// String renders "contig:pos", the format used by the MetricsSink's
// begin_cut/end_cut fields (spec §6).
func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.Contig, p.Pos)
}
