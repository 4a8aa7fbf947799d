// Package fs provides filesystem abstractions for testability and fault injection.
//
//   - [File]: an open file with positional reads/writes and sync
//   - [FileSystem]: open, remove, rename, stat, mkdir, readdir
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that fails writes, syncs or renames for
//     selected file names
//
// Tests inject [FaultyFS] to simulate a crash between an episode payload
// write and the attributes commit:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("CURRENT", fs.Fault{FailRename: true, FailAfterBytes: -1})
//
// Operations take no context.Context; local file I/O is not interruptible at
// the syscall level.
package fs
