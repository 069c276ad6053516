package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem stores objects as files under a root directory.
// It is safe for concurrent use; concurrent Puts to one key leave the last rename.
type Filesystem struct {
	root string
}

var _ Storage = (*Filesystem)(nil)

// NewFilesystem creates the root directory if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Filesystem{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *Filesystem) Root() string {
	return f.root
}

func (f *Filesystem) resolve(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.root, clean), nil
}

// Put writes r to a temporary file next to the target, syncs it and renames it
// into place.
func (f *Filesystem) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	full, err := f.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	if fi, err := os.Lstat(full); err == nil && !fi.Mode().IsRegular() {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrPathConflict, key)
	}

	tmp, err := createTemp(full)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("write %s: %w", key, err)
	}
	if opt.Size > 0 && n != opt.Size {
		return ObjectInfo{}, fmt.Errorf("write %s: short write: %d of %d bytes", key, n, opt.Size)
	}
	if err := tmp.Sync(); err != nil {
		return ObjectInfo{}, fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return ObjectInfo{}, fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return ObjectInfo{}, fmt.Errorf("rename into %s: %w", key, err)
	}
	committed = true

	ct := opt.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(full))
	}
	fi, err := os.Stat(full)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         n,
		ContentType:  ct,
		LastModified: fi.ModTime(),
		Metadata:     opt.Metadata,
	}, nil
}

// Get opens the file stored under key.
func (f *Filesystem) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	full, err := f.resolve(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}

	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, ObjectInfo{}, fmt.Errorf("open %s: %w", key, err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if !fi.Mode().IsRegular() {
		file.Close()
		return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return file, ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(full)),
		LastModified: fi.ModTime(),
	}, nil
}

// Delete removes the file under key; a missing file is not an error.
func (f *Filesystem) Delete(ctx context.Context, key string) error {
	full, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	f.prune(filepath.Dir(full))
	return nil
}

// prune removes dir and its parents below the root while they are empty.
func (f *Filesystem) prune(dir string) {
	for dir != f.root && strings.HasPrefix(dir, f.root+string(filepath.Separator)) {
		// Fails on a non-empty directory, which ends the walk.
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// createTemp makes a temp file next to full. A concurrent prune may remove the
// directory between MkdirAll and CreateTemp, so that case is retried.
func createTemp(full string) (*os.File, error) {
	dir := filepath.Dir(full)
	pattern := "." + filepath.Base(full) + ".tmp-*"
	var err error
	for range 3 {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		var tmp *os.File
		tmp, err = os.CreateTemp(dir, pattern)
		if err == nil {
			return tmp, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, err
}
