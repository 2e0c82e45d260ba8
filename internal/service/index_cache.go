package service

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"markov-go/internal/model/trigram"
)

// IndexFormatVersion is bumped whenever SerializableIndex changes shape
const IndexFormatVersion = "1.0"

// ErrCacheMiss is returned by stores that hold no entry for a key
var ErrCacheMiss = errors.New("index cache miss")

// CacheStatus reports how a generator obtained its index
type CacheStatus string

const (
	CacheDisabled CacheStatus = "disabled" // no store configured
	CacheHit      CacheStatus = "hit"      // loaded from the store
	CacheMiss     CacheStatus = "miss"     // store had no entry; rebuilt
	CacheCorrupt  CacheStatus = "corrupt"  // entry unreadable or wrong version; rebuilt
)

// IndexStore persists encoded indexes under string keys
type IndexStore interface {
	// Get returns the blob stored under key, or ErrCacheMiss
	Get(key string) ([]byte, error)

	// Put stores blob under key, replacing any previous entry
	Put(key string, blob []byte) error

	// Delete removes key; deleting a missing key is not an error
	Delete(key string) error

	// Name identifies the backend in logs
	Name() string
}

// SerializableIndex is the persisted form of a TrigramIndex
type SerializableIndex struct {
	Version   string              // Format version
	CreatedAt time.Time           // When the index was persisted
	Tagged    bool                // Whether the tokens are tagged
	Trigrams  int                 // Sum of successor list lengths
	Entries   []SerializableEntry // Contexts in first-seen order
}

// SerializableEntry is one context and its successor list
type SerializableEntry struct {
	Context    trigram.Context
	Successors []trigram.Token
}

// EncodeIndex serializes idx with gob
func EncodeIndex(idx *TrigramIndex) ([]byte, error) {
	model := &SerializableIndex{
		Version:   IndexFormatVersion,
		CreatedAt: time.Now(),
		Tagged:    idx.IsTagged(),
		Trigrams:  idx.trigrams,
		Entries:   make([]SerializableEntry, 0, len(idx.order)),
	}
	for _, ctx := range idx.order {
		model.Entries = append(model.Entries, SerializableEntry{
			Context:    ctx,
			Successors: idx.successors[ctx],
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(model); err != nil {
		return nil, fmt.Errorf("failed to encode index: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeIndex rebuilds an index from EncodeIndex output.
// Any decoding problem is reported as ErrCacheCorrupt.
func DecodeIndex(blob []byte) (*TrigramIndex, error) {
	var model SerializableIndex
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&model); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	if model.Version != IndexFormatVersion {
		return nil, fmt.Errorf("%w: version %q, want %q", ErrCacheCorrupt, model.Version, IndexFormatVersion)
	}

	idx := newTrigramIndex()
	for _, entry := range model.Entries {
		if len(entry.Successors) == 0 {
			return nil, fmt.Errorf("%w: empty successor list for %s", ErrCacheCorrupt, entry.Context)
		}
		for _, t := range entry.Successors {
			idx.add(entry.Context, t)
		}
	}
	if idx.trigrams != model.Trigrams {
		return nil, fmt.Errorf("%w: %d trigrams, header says %d", ErrCacheCorrupt, idx.trigrams, model.Trigrams)
	}

	return idx, nil
}

// LoadIndex reads the index stored under key.
// CacheCorrupt comes with a non-nil error describing the damage.
func LoadIndex(store IndexStore, key string) (*TrigramIndex, CacheStatus, error) {
	blob, err := store.Get(key)
	if errors.Is(err, ErrCacheMiss) {
		return nil, CacheMiss, nil
	}
	if err != nil {
		return nil, CacheCorrupt, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}

	idx, err := DecodeIndex(blob)
	if err != nil {
		return nil, CacheCorrupt, err
	}
	return idx, CacheHit, nil
}

// SaveIndex encodes idx and stores it under key
func SaveIndex(store IndexStore, key string, idx *TrigramIndex) error {
	blob, err := EncodeIndex(idx)
	if err != nil {
		return err
	}
	if err := store.Put(key, blob); err != nil {
		return fmt.Errorf("failed to store index in %s: %w", store.Name(), err)
	}
	return nil
}

// IndexKey scopes a corpus key to the options the index was built with
func IndexKey(base string, opts IndexOptions) string {
	return base + "-" + opts.Fingerprint()
}

// CorpusKey derives a stable cache key from a token sequence
func CorpusKey(tokens []trigram.Token) string {
	h := fnv.New64a()
	for _, t := range tokens {
		h.Write([]byte(t.Word))
		h.Write([]byte{0})
		if t.Tagged {
			h.Write([]byte(t.Tag))
			h.Write([]byte{1})
		}
	}
	return "corpus-" + hex.EncodeToString(h.Sum(nil))
}
