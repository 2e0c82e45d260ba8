package service

import (
	"bytes"
	"encoding/gob"
	"os"
	"testing"

	"markov-go/internal/model/trigram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEncodeDecodeIndex(t *testing.T) {
	tagged := trigram.TaggedSequence([][2]string{
		{"The", "AT"}, {"dog", "NN"}, {"ran", "VBD"}, {".", "."},
		{"The", "AT"}, {"dog", "NN"}, {"sat", "VBD"}, {".", "."},
	})

	for name, tokens := range map[string][]trigram.Token{
		"plain":  words("the cat sat the cat ran the cat sat"),
		"tagged": tagged,
		"empty":  nil,
	} {
		t.Run(name, func(t *testing.T) {
			original := BuildIndex(tokens)

			blob, err := EncodeIndex(original)
			require.NoError(t, err)

			decoded, err := DecodeIndex(blob)
			require.NoError(t, err)

			assert.Equal(t, original.Contexts(), decoded.Contexts())
			assert.Equal(t, original.Stats(), decoded.Stats())
			for _, ctx := range original.Contexts() {
				want, _ := original.Lookup(ctx)
				got, err := decoded.Lookup(ctx)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestDecodeIndex_Corrupt(t *testing.T) {
	encode := func(model *SerializableIndex) []byte {
		var buf bytes.Buffer
		require.NoError(t, gob.NewEncoder(&buf).Encode(model))
		return buf.Bytes()
	}

	tests := []struct {
		name string
		blob []byte
	}{
		{"garbage", []byte("not a gob stream")},
		{"truncated", func() []byte {
			blob, err := EncodeIndex(BuildIndex(words("a b c d e")))
			require.NoError(t, err)
			return blob[:len(blob)/2]
		}()},
		{"old version", encode(&SerializableIndex{Version: "0.9"})},
		{"empty successor list", encode(&SerializableIndex{
			Version: IndexFormatVersion,
			Entries: []SerializableEntry{{Context: ctxOf("a", "b")}},
		})},
		{"trigram count mismatch", encode(&SerializableIndex{
			Version:  IndexFormatVersion,
			Trigrams: 5,
			Entries: []SerializableEntry{{
				Context:    ctxOf("a", "b"),
				Successors: words("c"),
			}},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeIndex(tt.blob)
			assert.ErrorIs(t, err, ErrCacheCorrupt)
		})
	}
}

func TestFileIndexStore(t *testing.T) {
	store, err := NewFileIndexStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Put("corpus/one", []byte("blob")))
	assert.FileExists(t, store.GetIndexPath("corpus/one"))

	blob, err := store.Get("corpus/one")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), blob)

	require.NoError(t, store.Delete("corpus/one"))
	_, err = store.Get("corpus/one")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// deleting twice is fine
	assert.NoError(t, store.Delete("corpus/one"))
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "corpus-abc_1.2", sanitizeKey("corpus-abc_1.2"))
	assert.Equal(t, "a_b_c", sanitizeKey("a/b c"))
	assert.Equal(t, "name_x_", sanitizeKey("name:x?"))
}

func TestBadgerIndexStore(t *testing.T) {
	store, err := NewBadgerIndexStore(BadgerStoreConfig{InMemory: true}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	idx := BuildIndex(words("the cat sat the cat ran"))

	_, status, err := LoadIndex(store, "k")
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, status)

	require.NoError(t, SaveIndex(store, "k", idx))

	loaded, status, err := LoadIndex(store, "k")
	require.NoError(t, err)
	assert.Equal(t, CacheHit, status)
	assert.Equal(t, idx.Stats(), loaded.Stats())

	require.NoError(t, store.Delete("k"))
	_, status, err = LoadIndex(store, "k")
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, status)
}

func TestBadgerIndexStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerIndexStore(BadgerStoreConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewGenerator_CacheMissThenHit(t *testing.T) {
	store, err := NewFileIndexStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	tokens := words("The cat sat on the mat . The dog sat on the rug .")
	opts := GeneratorOptions{Store: store}

	first, err := NewGenerator(tokens, opts, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.CacheStatus())
	assert.Equal(t, CorpusKey(tokens)+"-all", first.CacheKey())
	assert.FileExists(t, store.GetIndexPath(first.CacheKey()))

	second, err := NewGenerator(tokens, opts, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.CacheStatus())
	assert.Equal(t, first.Index().Stats(), second.Index().Stats())
	assert.Equal(t, first.Index().Contexts(), second.Index().Contexts())
}

func TestNewGenerator_CorruptCache(t *testing.T) {
	store, err := NewFileIndexStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	tokens := words("The cat sat on the mat .")
	const key = "damaged"
	stored := IndexKey(key, IndexOptions{})
	require.NoError(t, os.WriteFile(store.GetIndexPath(stored), []byte("junk"), 0644))

	_, err = NewGenerator(tokens, GeneratorOptions{
		Store:              store,
		CacheKey:           key,
		FailOnCorruptCache: true,
	}, zap.NewNop())
	assert.ErrorIs(t, err, ErrCacheCorrupt)

	gen, err := NewGenerator(tokens, GeneratorOptions{Store: store, CacheKey: key}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, CacheCorrupt, gen.CacheStatus())
	assert.Equal(t, 5, gen.Index().TrigramCount())

	// the rebuilt index replaced the damaged entry
	assert.Equal(t, stored, gen.CacheKey())
	_, status, err := LoadIndex(store, stored)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, status)
}

func TestIndexKey(t *testing.T) {
	assert.Equal(t, "k-all", IndexKey("k", IndexOptions{}))
	assert.Equal(t, "k-all", IndexKey("k", IndexOptions{ExpectedTrigrams: 5}))
	assert.Equal(t, "k-pruned-1000-0.01", IndexKey("k", IndexOptions{
		PruneSingletons: true, ExpectedTrigrams: 1000, FalsePositiveRate: 0.01,
	}))
	assert.NotEqual(t,
		IndexKey("k", IndexOptions{PruneSingletons: true, ExpectedTrigrams: 1000, FalsePositiveRate: 0.01}),
		IndexKey("k", IndexOptions{PruneSingletons: true, ExpectedTrigrams: 1000, FalsePositiveRate: 0.05}))
}

func TestCorpusKey(t *testing.T) {
	a := CorpusKey(words("the cat sat"))
	assert.Equal(t, a, CorpusKey(words("the cat sat")))
	assert.NotEqual(t, a, CorpusKey(words("the cat ran")))
	assert.NotEqual(t, a, CorpusKey(words("thecat sat")))

	tagged := CorpusKey(trigram.TaggedSequence([][2]string{{"the", "AT"}, {"cat", "NN"}, {"sat", "VBD"}}))
	assert.NotEqual(t, a, tagged)
	assert.Contains(t, a, "corpus-")
}
