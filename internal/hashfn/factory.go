package hashfn

import (
	"fmt"

	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/engineerr"
)

// FieldSpec names either a single field or an inclusive field range within a
// schema, the Go realization of the factory node's "field" / "fieldrange"
// configuration options.
type FieldSpec struct {
	Min int
	Max int // equal to Min for a single-field spec
}

// Spec is the resolved configuration for building a Hasher, mirroring the
// factory node structure documented in original_source/hash.cpp's header
// comment: {fn, buckets, field|fieldrange, (function-specific options)}.
type Spec struct {
	Fn       string
	Buckets  uint32
	Field    FieldSpec
	Range    [2]int64 // for "range" / "exactrange"
	Offset   int64     // for "parammodulo" / "knuth"
	SkipBits uint32    // for "parammodulo" / "knuth"
}

// Create resolves a Spec against a schema into a bound Hasher plus the byte
// offset and size of the key field(s) within a tuple, mirroring
// TupleHasher::create's factory logic and precondition checks.
func Create(s *schema.Schema, spec Spec) (h Hasher, offset int, size int, err error) {
	if spec.Fn == "alwayszero" {
		return AlwaysZeroHasher{}, 0, 0, nil
	}

	isComposite := spec.Field.Max != spec.Field.Min

	switch spec.Fn {
	case "bytes":
		h, err = NewByteHasher(spec.Buckets)
	case "xxhash":
		h, err = NewXXHasher(spec.Buckets)
	case "tpchq1magic":
		h = TpchQ1MagicByteHasher{}
	default:
		if isComposite {
			return nil, 0, 0, fmt.Errorf("%w: composite key only legal for byte hashers", engineerr.ErrIllegalSchema)
		}

		col := s.Get(spec.Field.Min)
		switch col.Type {
		case schema.Int32, schema.Int64, schema.Date:
			// numeric, proceed
		default:
			return nil, 0, 0, fmt.Errorf("%w: value hashers require a numeric field", engineerr.ErrIllegalSchema)
		}

		switch spec.Fn {
		case "modulo":
			h, err = NewModuloValueHasher(spec.Buckets)
		case "range":
			h, err = NewRangeValueHasher(spec.Range[0], spec.Range[1], spec.Buckets)
		case "exactrange":
			h, err = NewExactRangeValueHasher(spec.Range[0], spec.Range[1], spec.Buckets)
		case "parammodulo":
			h, err = NewParameterizedModuloValueHasher(spec.Offset, spec.Buckets, spec.SkipBits)
		case "knuth":
			h, err = NewKnuthValueHasher(spec.Offset, spec.Buckets, spec.SkipBits)
		case "tpchorderkey":
			h, err = NewTpchMagicValueHasher(spec.Buckets)
		case "willis":
			h, err = NewWillisValueHasher(spec.Buckets)
		default:
			return nil, 0, 0, fmt.Errorf("%w: %q", engineerr.ErrUnknownHash, spec.Fn)
		}
	}
	if err != nil {
		return nil, 0, 0, err
	}

	offset = s.Offset(spec.Field.Min)
	size = 0
	for i := spec.Field.Min; i <= spec.Field.Max; i++ {
		size += s.Get(i).Size
	}

	return h, offset, size, nil
}
