// Package imagestore stores inspection and defect images outside the SQL
// database. Callers treat Put failures as "skip this image" and Delete
// failures as "log and continue".
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = errors.New("imagestore: not found")

// File is an image to store.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Stored describes where an image was written.
type Stored struct {
	URL string
	ID  string
}

// Store is the image storage collaborator.
type Store interface {
	Put(ctx context.Context, f File) (Stored, error)
	Delete(ctx context.Context, id string) error
}

// Getter is implemented by stores that can serve images back (the embedded
// badger store); remote stores serve through their own URLs.
type Getter interface {
	Get(ctx context.Context, id string) (File, error)
}

// NewObjectID builds a collision-free object key that keeps the file's
// extension, e.g. "3f0c9e...-scratch.jpg".
func NewObjectID(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + "-" + base
}

func validate(f File) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("imagestore: %q is empty", f.Name)
	}
	if f.ContentType != "" && !strings.HasPrefix(f.ContentType, "image/") {
		return fmt.Errorf("imagestore: %q has content type %q, want image/*", f.Name, f.ContentType)
	}
	return nil
}

func joinURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + id
}
