package types

import "fmt"

// ReduceKind enumerates the built-in reduction operators.
type ReduceKind int8

const (
	ReduceSum ReduceKind = iota
	ReduceAvg
	ReduceProduct
	ReduceMin
	ReduceMax
	ReduceBand
	ReduceBor
	ReduceBxor
	ReduceCustomKind
)

// String returns the lowercase reduction name.
func (k ReduceKind) String() string {
	switch k {
	case ReduceSum:
		return "sum"
	case ReduceAvg:
		return "avg"
	case ReduceProduct:
		return "product"
	case ReduceMin:
		return "min"
	case ReduceMax:
		return "max"
	case ReduceBand:
		return "band"
	case ReduceBor:
		return "bor"
	case ReduceBxor:
		return "bxor"
	case ReduceCustomKind:
		return "custom"
	default:
		return fmt.Sprintf("reducekind(%d)", int8(k))
	}
}

// ReduceOp is the reduction operator passed to reduce-family collectives.
// It is a value object rather than a bare enum so backends can define
// custom reductions (identified by Name) without the dispatch layer
// knowing about them.
type ReduceOp struct {
	Kind ReduceKind
	// Name labels a custom reduction; empty for built-in kinds.
	Name string
}

// Built-in reduction operators.
var (
	OpSum     = ReduceOp{Kind: ReduceSum}
	OpAvg     = ReduceOp{Kind: ReduceAvg}
	OpProduct = ReduceOp{Kind: ReduceProduct}
	OpMin     = ReduceOp{Kind: ReduceMin}
	OpMax     = ReduceOp{Kind: ReduceMax}
	OpBand    = ReduceOp{Kind: ReduceBand}
	OpBor     = ReduceOp{Kind: ReduceBor}
	OpBxor    = ReduceOp{Kind: ReduceBxor}
)

// CustomReduceOp returns a custom reduction operator that only backends
// aware of name can execute.
func CustomReduceOp(name string) ReduceOp {
	return ReduceOp{Kind: ReduceCustomKind, Name: name}
}

// String returns the reduction name, using the custom label when present.
func (op ReduceOp) String() string {
	if op.Kind == ReduceCustomKind && op.Name != "" {
		return op.Name
	}
	return op.Kind.String()
}
