// Package cache stores JSON documents in files, one file per ID.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Type names the directory a cache lives in.
type Type string

// ConversationCache holds conversation messages in sharded directories.
const ConversationCache Type = "conversations"

const (
	cacheExt       = ".json"
	shardPrefixLen = 2
)

// ErrNotFound is returned when no document is stored under an ID.
var ErrNotFound = errors.New("not found")

var errInvalidID = errors.New("invalid id")

// Cache stores values of type T as JSON files under baseDir/<type>.
//
// Conversation caches shard files into subdirectories named after the first
// two characters of the ID.
type Cache[T any] struct {
	dir     string
	sharded bool
}

// New creates the cache directory if needed.
func New[T any](baseDir string, cacheType Type) (*Cache[T], error) {
	dir := filepath.Join(baseDir, string(cacheType))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache[T]{dir: dir, sharded: cacheType == ConversationCache}, nil
}

func (c *Cache[T]) path(id string) string {
	if !c.sharded || len(id) < shardPrefixLen {
		return filepath.Join(c.dir, id+cacheExt)
	}
	return filepath.Join(c.dir, id[:shardPrefixLen], id+cacheExt)
}

func validID(id string) bool {
	return id != "" && filepath.Base(id) == id && id != "." && id != ".."
}

// Get decodes the document stored under id.
func (c *Cache[T]) Get(id string) (T, error) {
	var v T
	if !validID(id) {
		return v, fmt.Errorf("get: %w", errInvalidID)
	}
	bts, err := os.ReadFile(c.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return v, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return v, fmt.Errorf("get: %w", err)
	}
	if err := json.Unmarshal(bts, &v); err != nil {
		return v, fmt.Errorf("get: decode %s: %w", id, err)
	}
	return v, nil
}

// Put atomically replaces the document stored under id.
func (c *Cache[T]) Put(id string, v T) error {
	if !validID(id) {
		return fmt.Errorf("put: %w", errInvalidID)
	}
	bts, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("put: encode %s: %w", id, err)
	}

	path := c.path(id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(bts); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// Delete removes the document stored under id. Missing documents are not an
// error.
func (c *Cache[T]) Delete(id string) error {
	if !validID(id) {
		return fmt.Errorf("delete: %w", errInvalidID)
	}
	if err := os.Remove(c.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
