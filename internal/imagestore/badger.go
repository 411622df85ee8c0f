package imagestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const (
	dataPrefix = "img/data/"
	metaPrefix = "img/meta/"
)

type badgerMeta struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// Badger stores images in an embedded badger key-value database.
type Badger struct {
	db      *badger.DB
	baseURL string
}

// OpenBadger opens (or creates) a badger store at dir. URLs are baseURL/<id>.
// An empty dir opens an in-memory store.
func OpenBadger(dir, baseURL string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("imagestore: open badger %s: %w", dir, err)
	}
	return &Badger{db: db, baseURL: baseURL}, nil
}

// Put implements Store.
func (b *Badger) Put(_ context.Context, f File) (Stored, error) {
	if err := validate(f); err != nil {
		return Stored{}, err
	}
	id := NewObjectID(f.Name)
	meta, err := json.Marshal(badgerMeta{Name: f.Name, ContentType: f.ContentType})
	if err != nil {
		return Stored{}, fmt.Errorf("imagestore: encode meta: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataPrefix+id), f.Data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+id), meta)
	})
	if err != nil {
		return Stored{}, fmt.Errorf("imagestore: put %s: %w", f.Name, err)
	}
	return Stored{URL: joinURL(b.baseURL, id), ID: id}, nil
}

// Get implements Getter.
func (b *Badger) Get(_ context.Context, id string) (File, error) {
	var f File
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataPrefix + id))
		if err != nil {
			return err
		}
		if f.Data, err = item.ValueCopy(nil); err != nil {
			return err
		}
		metaItem, err := txn.Get([]byte(metaPrefix + id))
		if err != nil {
			return err
		}
		return metaItem.Value(func(val []byte) error {
			var m badgerMeta
			if err := json.Unmarshal(val, &m); err != nil {
				return err
			}
			f.Name, f.ContentType = m.Name, m.ContentType
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return File{}, fmt.Errorf("imagestore: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return File{}, fmt.Errorf("imagestore: get %s: %w", id, err)
	}
	return f, nil
}

// Delete implements Store. Deleting an unknown ID is not an error.
func (b *Badger) Delete(_ context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(dataPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(metaPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("imagestore: delete %s: %w", id, err)
	}
	return nil
}

// Close releases the badger database.
func (b *Badger) Close() error {
	return b.db.Close()
}
