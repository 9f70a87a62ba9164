package fsutil

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

// ErrOutput marks any failure to open, write or close a run output.
var ErrOutput = errors.New("output error")

// OutputError names the output that failed.
type OutputError struct {
	Path string
	Op   string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both the category and the underlying cause.
func (e *OutputError) Unwrap() []error {
	return []error{ErrOutput, e.Err}
}

// WithFile creates or truncates path, passes it to fn and closes it on
// every path. Errors from opening, fn and closing are returned as
// *OutputError.
func WithFile(fsys FileSystem, path string, fn func(io.Writer) error) error {
	return withWriter(fsys.Create, path, fn)
}

// AppendFile is WithFile for an append-mode handle.
func AppendFile(fsys FileSystem, path string, fn func(io.Writer) error) error {
	return withWriter(fsys.Append, path, fn)
}

func withWriter(open func(string) (io.WriteCloser, error), path string, fn func(io.Writer) error) (err error) {
	w, err := open(path)
	if err != nil {
		return &OutputError{Path: path, Op: "open", Err: err}
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = &OutputError{Path: path, Op: "close", Err: cerr}
		}
	}()
	if err := fn(w); err != nil {
		var oe *OutputError
		if errors.As(err, &oe) {
			return err
		}
		return &OutputError{Path: path, Op: "write", Err: err}
	}
	return nil
}

// Outputs resolves output names inside one run directory.
type Outputs struct {
	FS  FileSystem
	Dir string
}

// Path joins name onto the output directory.
func (o Outputs) Path(name string) string {
	return filepath.Join(o.Dir, name)
}

// Prepare creates the output directory and any subdirectories.
func (o Outputs) Prepare(subdirs ...string) error {
	for _, d := range append([]string{""}, subdirs...) {
		p := filepath.Join(o.Dir, d)
		if err := o.FS.MkdirAll(p, 0o755); err != nil {
			return &OutputError{Path: p, Op: "mkdir", Err: err}
		}
	}
	return nil
}

// Write creates name in the output directory and fills it with fn.
func (o Outputs) Write(name string, fn func(io.Writer) error) error {
	return WithFile(o.FS, o.Path(name), fn)
}

// Append adds to name in the output directory.
func (o Outputs) Append(name string, fn func(io.Writer) error) error {
	return AppendFile(o.FS, o.Path(name), fn)
}
