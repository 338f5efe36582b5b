// Package schema describes the immutable column layout of tuples flowing
// through the operator tree.
package schema

import "fmt"

// ColumnType is the type tag of a single column.
type ColumnType int

const (
	Int32 ColumnType = iota
	Int64
	Decimal
	Char
	Pointer
	Date
)

func (t ColumnType) String() string {
	switch t {
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case Decimal:
		return "Decimal"
	case Char:
		return "Char"
	case Pointer:
		return "Pointer"
	case Date:
		return "Date"
	default:
		return "Unknown"
	}
}

// staticSize returns the fixed width for non-Char types, or 0 for Char (whose
// width is caller-specified).
func staticSize(t ColumnType) int {
	switch t {
	case Int32:
		return 4
	case Int64, Decimal, Pointer, Date:
		return 8
	default:
		return 0
	}
}

// ColumnSpec is one column's type and width.
type ColumnSpec struct {
	Type ColumnType
	Size int // byte width; for Char this is the declared capacity
}

// Schema is an ordered, immutable sequence of columns. Construct once with
// New; all methods are read-only thereafter.
type Schema struct {
	columns    []ColumnSpec
	offsets    []int
	tupleWidth int
}

// New builds a Schema from an ordered column list, computing per-column byte
// offsets and the total tuple width. Char columns must carry an explicit
// Size; other types get their canonical width filled in automatically if the
// caller leaves Size unset (zero).
func New(columns []ColumnSpec) (*Schema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("schema: at least one column is required")
	}

	cols := make([]ColumnSpec, len(columns))
	offsets := make([]int, len(columns))
	offset := 0

	for i, c := range columns {
		size := c.Size
		if c.Type != Char {
			canon := staticSize(c.Type)
			if size == 0 {
				size = canon
			} else if size != canon {
				return nil, fmt.Errorf("schema: column %d type %s declares size %d, want %d", i, c.Type, size, canon)
			}
		} else if size <= 0 {
			return nil, fmt.Errorf("schema: column %d is Char but declares non-positive size %d", i, size)
		}

		cols[i] = ColumnSpec{Type: c.Type, Size: size}
		offsets[i] = offset
		offset += size
	}

	return &Schema{columns: cols, offsets: offsets, tupleWidth: offset}, nil
}

// NumColumns returns the number of columns.
func (s *Schema) NumColumns() int { return len(s.columns) }

// TupleSize returns the fixed byte width of one tuple under this schema.
func (s *Schema) TupleSize() int { return s.tupleWidth }

// Get returns the ColumnSpec at position i.
func (s *Schema) Get(i int) ColumnSpec { return s.columns[i] }

// Offset returns the byte offset of column i within a tuple.
func (s *Schema) Offset(i int) int { return s.offsets[i] }

// CalcOffset returns the offset of column `field` relative to the start of
// tuple number `tupleIndex` in a densely packed buffer of tuples under this
// schema (tupleIndex is typically 0 for a single-tuple calculation; callers
// composing multiple tuples in one page multiply externally).
func (s *Schema) CalcOffset(tupleIndex, field int) int {
	return tupleIndex*s.tupleWidth + s.offsets[field]
}
