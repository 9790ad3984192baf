package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	tmpPrefix = ".tmp-"
	locksDir  = ".locks"
	lockRetry = 100 * time.Millisecond
	dirPerm   = 0o755
	filePerm  = 0o644
)

// FSStore keeps documents as files under a root directory.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) Root() string { return s.root }

func (s *FSStore) Load(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, opError("load", key, err)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, opError("load", key, ErrNotFound)
	}
	if err != nil {
		return nil, opError("load", key, err)
	}
	return data, nil
}

// Save writes data to a temporary file next to the target and renames it into
// place, so readers never see a partial document.
func (s *FSStore) Save(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return opError("save", key, err)
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return opError("save", key, err)
	}
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return opError("save", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return opError("save", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return opError("save", key, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return opError("save", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return opError("save", key, err)
	}
	return nil
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	// Walk from the deepest directory the prefix names.
	dirKey := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dirKey = prefix[:i]
	}
	start := s.root
	if dirKey != "" {
		p, err := s.path(dirKey)
		if err != nil {
			return nil, opError("list", prefix, err)
		}
		start = p
	}

	var keys []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if name == locksDir && filepath.Dir(p) == s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, opError("list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FSStore) Copy(ctx context.Context, src, dst string) error {
	data, err := s.Load(ctx, src)
	if err != nil {
		return opError("copy", src, err)
	}
	if err := s.Save(ctx, dst, data); err != nil {
		return opError("copy", dst, err)
	}
	return nil
}

// LockExecution takes an exclusive file lock for one execution, waiting until
// it is free or ctx is done. The returned function releases it.
func (s *FSStore) LockExecution(ctx context.Context, executionID string) (func() error, error) {
	if executionID == "" || strings.ContainsAny(executionID, `/\`) || executionID == "." || executionID == ".." {
		return nil, fmt.Errorf("invalid execution id %q", executionID)
	}
	dir := filepath.Join(s.root, locksDir)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, executionID+".lock"))
	ok, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock execution %s: %w", executionID, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock execution %s: not acquired", executionID)
	}
	return lock.Unlock, nil
}

// path maps a key to a file under root, rejecting keys that would escape it.
func (s *FSStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	clean := path.Clean(key)
	if clean != strings.TrimSuffix(key, "/") || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	segs := strings.Split(clean, "/")
	if segs[0] == locksDir {
		return "", fmt.Errorf("invalid key %q", key)
	}
	for _, seg := range segs {
		if strings.HasPrefix(seg, tmpPrefix) {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
