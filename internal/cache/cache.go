// Package cache keeps tokenized books on disk so reopening a book skips
// extraction.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/metcalfc/flick/internal/reader"
)

var bucketBooks = []byte("books")

// Cache stores books keyed by content hash and tokenizer version. A nil
// *Cache is valid and caches nothing.
type Cache struct {
	db *bolt.DB

	// mem backs memory-only mode.
	mu  sync.RWMutex
	mem map[string][]byte
}

// Open opens the cache database at path. An empty path gives a memory-only
// cache that lasts for the process.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{mem: make(map[string][]byte)}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketBooks)
		if err != nil {
			return err
		}
		return pruneStale(b)
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// pruneStale drops books tokenized by another tokenizer version.
func pruneStale(b *bolt.Bucket) error {
	prefix := []byte(reader.TokenizerVersion + ":")
	var stale [][]byte
	err := b.ForEach(func(k, _ []byte) error {
		if !bytes.HasPrefix(k, prefix) {
			stale = append(stale, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func key(id string) string {
	return reader.TokenizerVersion + ":" + id
}

// Get returns the cached book for id, or nil when there is none. Entries
// that no longer decode are reported as errors so callers can re-extract.
func (c *Cache) Get(id string) (*reader.Book, error) {
	if c == nil {
		return nil, nil
	}

	var data []byte
	if c.db == nil {
		c.mu.RLock()
		data = c.mem[key(id)]
		c.mu.RUnlock()
	} else {
		err := c.db.View(func(tx *bolt.Tx) error {
			if v := tx.Bucket(bucketBooks).Get([]byte(key(id))); v != nil {
				data = make([]byte, len(v))
				copy(data, v)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("read cached book %s: %w", id, err)
		}
	}
	if data == nil {
		return nil, nil
	}

	var book reader.Book
	if err := json.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("decode cached book %s: %w", id, err)
	}
	if book.ID != id {
		return nil, nil
	}
	return &book, nil
}

// Put stores book under its ID.
func (c *Cache) Put(book *reader.Book) error {
	if c == nil {
		return nil
	}
	if book == nil || book.ID == "" {
		return fmt.Errorf("cache: book has no id")
	}
	data, err := json.Marshal(book)
	if err != nil {
		return err
	}

	if c.db == nil {
		c.mu.Lock()
		c.mem[key(book.ID)] = data
		c.mu.Unlock()
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBooks).Put([]byte(key(book.ID)), data)
	})
}

// Delete removes id under every tokenizer version.
func (c *Cache) Delete(id string) error {
	if c == nil {
		return nil
	}
	suffix := ":" + id

	if c.db == nil {
		c.mu.Lock()
		for k := range c.mem {
			if strings.HasSuffix(k, suffix) {
				delete(c.mem, k)
			}
		}
		c.mu.Unlock()
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBooks)
		var doomed [][]byte
		err := b.ForEach(func(k, _ []byte) error {
			if strings.HasSuffix(string(k), suffix) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
