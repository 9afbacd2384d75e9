package inproc

import (
	"github.com/BaSui01/commflow/types"
)

// reduceInto folds src into acc elementwise according to op. Bitwise kinds
// are integer-only and custom kinds are unknown to this backend; both fail
// synchronously.
func reduceInto(op types.ReduceOp, acc, src []float64) error {
	if len(acc) != len(src) {
		return types.Errorf(types.ErrInvalidOptions,
			"reduction size mismatch: %d vs %d elements", len(acc), len(src))
	}
	switch op.Kind {
	case types.ReduceSum, types.ReduceAvg:
		for i, v := range src {
			acc[i] += v
		}
	case types.ReduceProduct:
		for i, v := range src {
			acc[i] *= v
		}
	case types.ReduceMin:
		for i, v := range src {
			if v < acc[i] {
				acc[i] = v
			}
		}
	case types.ReduceMax:
		for i, v := range src {
			if v > acc[i] {
				acc[i] = v
			}
		}
	default:
		return types.Errorf(types.ErrUnsupportedOp,
			"inproc backend cannot reduce with %s on float buffers", op)
	}
	return nil
}

// finishReduce applies the post-fold step; only averaging needs one.
func finishReduce(op types.ReduceOp, acc []float64, size int) {
	if op.Kind == types.ReduceAvg && size > 0 {
		inv := 1.0 / float64(size)
		for i := range acc {
			acc[i] *= inv
		}
	}
}

// validReduceOp is the synchronous pre-flight check for reduce-family ops.
func validReduceOp(op types.ReduceOp) error {
	switch op.Kind {
	case types.ReduceSum, types.ReduceAvg, types.ReduceProduct, types.ReduceMin, types.ReduceMax:
		return nil
	default:
		return types.Errorf(types.ErrUnsupportedOp,
			"inproc backend does not support reduction %s", op)
	}
}

// reduceAcross folds the per-rank contributions at tensor slot idx into a
// fresh slice.
func reduceAcross(op types.ReduceOp, contribs []payload, idx int) ([]float64, error) {
	acc := append([]float64(nil), contribs[0][idx]...)
	for _, c := range contribs[1:] {
		if err := reduceInto(op, acc, c[idx]); err != nil {
			return nil, err
		}
	}
	finishReduce(op, acc, len(contribs))
	return acc, nil
}
