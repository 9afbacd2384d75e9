package types

import (
	"fmt"
	"strings"
)

// BackendType tags a backend kind. A Group may hold at most one backend
// instance per BackendType; multiple device types may alias that instance.
type BackendType int8

const (
	BackendUndefined BackendType = iota
	BackendGloo
	BackendNCCL
	BackendUCC
	BackendMPI
	BackendCustom
)

// String returns the lowercase backend kind name.
func (bt BackendType) String() string {
	switch bt {
	case BackendUndefined:
		return "undefined"
	case BackendGloo:
		return "gloo"
	case BackendNCCL:
		return "nccl"
	case BackendUCC:
		return "ucc"
	case BackendMPI:
		return "mpi"
	case BackendCustom:
		return "custom"
	default:
		return fmt.Sprintf("backendtype(%d)", int8(bt))
	}
}

// ParseBackendType maps a backend name to its BackendType tag. Unknown
// names map to BackendCustom so third-party backends remain usable with
// their own labels.
func ParseBackendType(s string) BackendType {
	switch strings.ToLower(s) {
	case "", "undefined":
		return BackendUndefined
	case "gloo":
		return BackendGloo
	case "nccl":
		return BackendNCCL
	case "ucc":
		return BackendUCC
	case "mpi":
		return BackendMPI
	default:
		return BackendCustom
	}
}

// SupportsSequenceNumbers reports whether this backend kind participates in
// the group sequence-number protocol.
func (bt BackendType) SupportsSequenceNumbers() bool {
	switch bt {
	case BackendGloo, BackendNCCL, BackendUCC:
		return true
	default:
		return false
	}
}
