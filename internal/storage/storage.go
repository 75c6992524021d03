// Package storage deletes blobs from the object store backing user media.
//
// Deletion is keyed by the storage key recorded in media_objects (and the
// account's avatar key). Deleting a key that does not exist succeeds, so a
// purge that is retried after a partial cleanup does not report spurious
// failures.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Deleter removes one object by key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// ErrInvalidKey is returned for empty keys or keys escaping the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// Noop discards every delete. Used when no object store is configured.
type Noop struct{}

func (Noop) Delete(context.Context, string) error { return nil }

// Local deletes files under Root. Intended for development setups where media
// is written to disk.
type Local struct {
	Root string
}

// NewLocal returns a Local rooted at dir.
func NewLocal(dir string) *Local { return &Local{Root: dir} }

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (l *Local) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	// Rooting the key before cleaning clamps any ".." to Root.
	full := filepath.Join(l.Root, filepath.Clean("/"+filepath.FromSlash(key)))
	if full == filepath.Clean(l.Root) {
		return "", ErrInvalidKey
	}
	return full, nil
}
