package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceType_RoundTrip(t *testing.T) {
	for _, dt := range []DeviceType{DeviceCPU, DeviceCUDA} {
		parsed, err := ParseDeviceType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, parsed)
	}
}

func TestParseDeviceType_Unknown(t *testing.T) {
	_, err := ParseDeviceType("tpu")
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrUnknownDeviceType))
}

func TestDevice_String(t *testing.T) {
	assert.Equal(t, "cpu", NewDevice(DeviceCPU).String())
	assert.Equal(t, "cuda:1", NewIndexedDevice(DeviceCUDA, 1).String())
	assert.False(t, NewDevice(DeviceCUDA).HasIndex())
	assert.True(t, NewIndexedDevice(DeviceCPU, 0).HasIndex())
}

func TestParseBackendType(t *testing.T) {
	tests := []struct {
		name string
		want BackendType
	}{
		{"", BackendUndefined},
		{"undefined", BackendUndefined},
		{"gloo", BackendGloo},
		{"NCCL", BackendNCCL},
		{"ucc", BackendUCC},
		{"mpi", BackendMPI},
		{"my-transport", BackendCustom},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBackendType(tt.name), "name %q", tt.name)
	}
}

func TestBackendType_SupportsSequenceNumbers(t *testing.T) {
	assert.True(t, BackendGloo.SupportsSequenceNumbers())
	assert.True(t, BackendNCCL.SupportsSequenceNumbers())
	assert.True(t, BackendUCC.SupportsSequenceNumbers())
	assert.False(t, BackendMPI.SupportsSequenceNumbers())
	assert.False(t, BackendCustom.SupportsSequenceNumbers())
	assert.False(t, BackendUndefined.SupportsSequenceNumbers())
}

func TestReduceOp_String(t *testing.T) {
	assert.Equal(t, "sum", OpSum.String())
	assert.Equal(t, "max", OpMax.String())
	assert.Equal(t, "quantized-mean", CustomReduceOp("quantized-mean").String())
	assert.Equal(t, "custom", ReduceOp{Kind: ReduceCustomKind}.String())
}

func TestDebugLevelFromEnv(t *testing.T) {
	t.Setenv(DebugEnv, "DETAIL")
	assert.Equal(t, DebugDetail, DebugLevelFromEnv())

	t.Setenv(DebugEnv, "info")
	assert.Equal(t, DebugInfo, DebugLevelFromEnv())

	t.Setenv(DebugEnv, "bogus")
	assert.Equal(t, DebugOff, DebugLevelFromEnv())
}
