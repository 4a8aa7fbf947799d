package fs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault")

// Fault describes how operations on matching files fail.
type Fault struct {
	// FailWrites fails every Write/WriteAt on the file.
	FailWrites bool
	// FailAfterBytes fails writes once this many bytes were written to the
	// file. -1 disables the limit.
	FailAfterBytes int64
	FailOnSync     bool
	// FailRename fails renames whose target base name matches.
	FailRename bool
	Err        error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS wraps a FileSystem and injects failures for files whose base
// name matches a rule.
type FaultyFS struct {
	FS    FileSystem
	mu    sync.Mutex
	rules map[string]Fault
}

// NewFaultyFS creates a FaultyFS wrapping fsys (or Default if nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{
		FS:    fsys,
		rules: make(map[string]Fault),
	}
}

// AddRule registers a fault for files with the given base name.
// Rules only affect files opened after the call.
func (f *FaultyFS) AddRule(base string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[base] = fault
}

// ClearRules removes all rules.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.rules)
}

func (f *FaultyFS) rule(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fault, ok := f.rules[filepath.Base(name)]
	return fault, ok
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	fault, ok := f.rule(name)
	if !ok {
		return file, nil
	}
	return &faultyFile{File: file, fault: fault}, nil
}

func (f *FaultyFS) Remove(name string) error    { return f.FS.Remove(name) }
func (f *FaultyFS) RemoveAll(path string) error { return f.FS.RemoveAll(path) }

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if fault, ok := f.rule(newpath); ok && fault.FailRename {
		return fault.err()
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.FS.ReadDir(name) }

type faultyFile struct {
	File
	fault   Fault
	written int64
}

func (ff *faultyFile) check(n int) error {
	if ff.fault.FailWrites {
		return ff.fault.err()
	}
	if ff.fault.FailAfterBytes >= 0 && ff.written+int64(n) > ff.fault.FailAfterBytes {
		return ff.fault.err()
	}
	return nil
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.check(len(p)); err != nil {
		return 0, err
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if err := ff.check(len(p)); err != nil {
		return 0, err
	}
	n, err := ff.File.WriteAt(p, off)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}
