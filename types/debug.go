package types

import (
	"os"
	"strings"
)

// DebugLevel controls how much diagnostic detail a Group emits. It is
// parsed once when the Group is constructed and remains constant for the
// lifetime of the instance.
type DebugLevel int8

const (
	DebugOff DebugLevel = iota
	DebugInfo
	DebugDetail
)

// DebugEnv is the environment variable consulted for the debug level.
const DebugEnv = "COMMFLOW_DEBUG"

// String returns the uppercase debug level name.
func (dl DebugLevel) String() string {
	switch dl {
	case DebugInfo:
		return "INFO"
	case DebugDetail:
		return "DETAIL"
	default:
		return "OFF"
	}
}

// DebugLevelFromEnv reads COMMFLOW_DEBUG; unknown or missing values map
// to DebugOff.
func DebugLevelFromEnv() DebugLevel {
	switch strings.ToUpper(os.Getenv(DebugEnv)) {
	case "INFO":
		return DebugInfo
	case "DETAIL":
		return DebugDetail
	default:
		return DebugOff
	}
}
