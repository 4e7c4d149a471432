// Package storage provides utilities shared across storage adapter
// implementations, including sentinel errors and tenant context helpers.
//
// The call-history archive in pkg/storage/postgres implements
// pkg/stream/executor.Archiver and does not import this package, which holds
// only the sentinel errors and the tenant context helpers that pkg/auth and
// pkg/tools/builtins/filesearch use, not the archive interface itself.
package storage
