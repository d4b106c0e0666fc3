package vcfio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/gvcfshard/position"
)

const (
	fieldContig = 0
	fieldPos    = 1
	fieldRef    = 3
	fieldInfo   = 7
)

// Record is one materialized variant line (spec.md §3 "Variant record
// semantics used by the core"). Only fields 0 (contig), 1 (pos), 3 (REF),
// and 7 (INFO) are inspected; the rest of the line is opaque and is
// preserved byte-for-byte when a Record is copied out unmodified.
type Record struct {
	line   string
	fields []string
	order  *position.ContigOrder
	pos    int64
}

func parseRecord(line string, order *position.ContigOrder) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) <= fieldRef {
		return nil, newParseError("record has fewer than %d tab-separated fields: %q", fieldRef+1, line)
	}
	pos, err := strconv.ParseInt(fields[fieldPos], 10, 64)
	if err != nil {
		return nil, newParseError("bad POS field %q in line %q: %v", fields[fieldPos], line, err)
	}
	return &Record{line: line, fields: fields, order: order, pos: pos}, nil
}

// Line returns the raw, unmodified record text (no trailing newline).
func (r *Record) Line() string { return r.line }

// Fields returns the tab-split fields of the record. Callers must not
// mutate the returned slice; make a copy first (saveFirstRecord and
// saveLastRecord instead re-split Line() via replaceField).
func (r *Record) Fields() []string { return r.fields }

// Contig returns field 0.
func (r *Record) Contig() string { return r.fields[fieldContig] }

// Pos returns field 1, the record's 1-based start position.
func (r *Record) Pos() int64 { return r.pos }

// Ref returns field 3.
func (r *Record) Ref() string {
	if len(r.fields) <= fieldRef {
		return ""
	}
	return r.fields[fieldRef]
}

// Info returns field 7, or "" if the line is short enough not to have one.
func (r *Record) Info() string {
	if len(r.fields) <= fieldInfo {
		return ""
	}
	return r.fields[fieldInfo]
}

// Position returns the record's genomic start position.
func (r *Record) Position() position.Position {
	return position.New(r.order, r.Contig(), r.pos)
}

// IsDeletion reports whether the record is a deletion: len(REF) > 1 (spec
// §3).
func (r *Record) IsDeletion() bool {
	return len(r.Ref()) > 1
}

// EndPosition returns (contig, END-value) if INFO begins with an "END="
// token, else (zero value, false) (spec §3: "A record has an end position
// iff its INFO field begins with an END= tag").
func (r *Record) EndPosition() (position.Position, bool) {
	info := r.Info()
	if info == "" {
		return position.Position{}, false
	}
	leading := info
	if i := strings.IndexByte(info, ';'); i >= 0 {
		leading = info[:i]
	}
	if !strings.HasPrefix(leading, "END=") {
		return position.Position{}, false
	}
	end, err := strconv.ParseInt(leading[len("END="):], 10, 64)
	if err != nil {
		return position.Position{}, false
	}
	return position.New(r.order, r.Contig(), end), true
}

// ExtentEnd returns the last genomic position covered by this record: the
// END value for a reference block, pos+len(REF)-1 for a deletion, or pos
// for anything else (a single-base record). This is used to compute the
// position to advance past when the last record in a file is itself a
// deletion (spec §9 — no longer a fatal unimplemented case; see
// SPEC_FULL.md).
func (r *Record) ExtentEnd() int64 {
	if end, ok := r.EndPosition(); ok {
		return end.Pos
	}
	if r.IsDeletion() {
		return r.pos + int64(len(r.Ref())) - 1
	}
	return r.pos
}

// rewriteEnd returns info with its leading "END=<n>" token replaced by
// "END=<newEnd>".
func rewriteEnd(info string, newEnd int64) string {
	rest := ""
	leading := info
	if i := strings.IndexByte(info, ';'); i >= 0 {
		leading = info[:i]
		rest = info[i:]
	}
	_ = leading
	return "END=" + strconv.FormatInt(newEnd, 10) + rest
}

type parseError struct {
	msg string
}

func (e *parseError) Error() string { return e.msg }

func newParseError(format string, args ...interface{}) error {
	return &parseError{msg: fmt.Sprintf(format, args...)}
}
