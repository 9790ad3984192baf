// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/dgallion1/docreview/internal/storage"
)

// MemStore is an in-process storage.Store. Fail, when set, is consulted before
// every call and its error is returned instead of performing it.
type MemStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves []string

	Fail func(op, key string) error
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Load(_ context.Context, key string) ([]byte, error) {
	if err := m.fail("load", key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, opError("load", key, storage.ErrNotFound)
	}
	return bytes.Clone(data), nil
}

func (m *MemStore) Save(_ context.Context, key string, data []byte) error {
	if err := m.fail("save", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = bytes.Clone(data)
	m.saves = append(m.saves, key)
	return nil
}

func (m *MemStore) List(_ context.Context, prefix string) ([]string, error) {
	if err := m.fail("list", prefix); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemStore) Copy(ctx context.Context, src, dst string) error {
	data, err := m.Load(ctx, src)
	if err != nil {
		return opError("copy", src, err)
	}
	return opError("copy", dst, m.Save(ctx, dst, data))
}

// Put stores data without recording a save.
func (m *MemStore) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = bytes.Clone(data)
}

// Saves returns the keys passed to Save, in call order.
func (m *MemStore) Saves() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.saves))
	copy(out, m.saves)
	return out
}

func (m *MemStore) fail(op, key string) error {
	if m.Fail == nil {
		return nil
	}
	return opError(op, key, m.Fail(op, key))
}

// opError wraps err as a *storage.Error unless it already is one.
func opError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *storage.Error
	if errors.As(err, &se) {
		return err
	}
	return &storage.Error{Op: op, Key: key, Err: err}
}
