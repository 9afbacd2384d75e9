// Copyright (c) CommFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type definitions of the commflow library.

types is the lowest-level public package; it depends on nothing internal and
supplies the type contract consumed by group, backend, work, store and the
concrete backends. Everything that crosses package boundaries lives here to
avoid import cycles.

Core types:

  - DeviceType / Device   — device kind plus optional device index
  - BackendType           — backend kind tag (gloo, nccl, ucc, mpi, custom)
  - ReduceOp              — reduction operator value object, extensible
  - Tensor                — the minimal buffer contract the dispatch layer needs
  - *Options              — one flat option struct per collective kind
  - Error / ErrorCode     — structured error taxonomy (WrapError / IsErrorCode)
  - DebugLevel            — group debug level, snapshotted at construction
*/
package types
