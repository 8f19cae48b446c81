package iofs

import (
	"io"
	"os"
	"path/filepath"
)

// LocalFileIO is a FileIO backed by the local filesystem, rooted at Base.
type LocalFileIO struct {
	Base string
}

// NewLocalFileIO returns a FileIO rooted at base. base is created if it
// does not already exist.
func NewLocalFileIO(base string) (*LocalFileIO, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &LocalFileIO{Base: base}, nil
}

func (l *LocalFileIO) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.Base, path)
}

type localInputFile struct {
	path     string
	fullPath string
}

func (f *localInputFile) Path() string { return f.path }

func (f *localInputFile) Open() (io.ReadCloser, error) {
	r, err := os.Open(f.fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, PathNotFoundError{Path: f.path}
		}
		return nil, err
	}
	return r, nil
}

type localOutputFile struct {
	path     string
	fullPath string
}

func (f *localOutputFile) Path() string { return f.path }

func (f *localOutputFile) Create() (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(f.fullPath), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(f.fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// NewInputFile implements FileIO.
func (l *LocalFileIO) NewInputFile(path string) (InputFile, error) {
	return &localInputFile{path: path, fullPath: l.resolve(path)}, nil
}

// NewOutputFile implements FileIO.
func (l *LocalFileIO) NewOutputFile(path string) (OutputFile, error) {
	return &localOutputFile{path: path, fullPath: l.resolve(path)}, nil
}

// DeleteFile implements FileIO.
func (l *LocalFileIO) DeleteFile(path string) error {
	err := os.Remove(l.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return PathNotFoundError{Path: path}
		}
		return err
	}
	return nil
}

// Rename implements FileIO.
func (l *LocalFileIO) Rename(oldPath, newPath string) error {
	fullNew := l.resolve(newPath)
	if err := os.MkdirAll(filepath.Dir(fullNew), 0o755); err != nil {
		return err
	}
	if err := os.Rename(l.resolve(oldPath), fullNew); err != nil {
		if os.IsNotExist(err) {
			return PathNotFoundError{Path: oldPath}
		}
		return err
	}
	return nil
}
