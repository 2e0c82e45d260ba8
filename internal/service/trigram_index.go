package service

import (
	"fmt"
	"hash/fnv"
	"sort"
	"unicode"
	"unicode/utf8"

	"markov-go/internal/model/trigram"

	"github.com/bits-and-blooms/bloom/v3"
)

// IndexOptions controls how a trigram index is built
type IndexOptions struct {
	PruneSingletons   bool    // Only index trigrams seen more than once
	ExpectedTrigrams  uint    // Bloom filter capacity when pruning
	FalsePositiveRate float64 // Bloom filter false positive rate when pruning
}

// DefaultIndexOptions returns options that index every trigram
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		PruneSingletons:   false,
		ExpectedTrigrams:  100000,
		FalsePositiveRate: 0.01,
	}
}

// Fingerprint identifies indexes built with these options in cache keys.
// Filter settings only matter when pruning.
func (o IndexOptions) Fingerprint() string {
	if !o.PruneSingletons {
		return "all"
	}
	return fmt.Sprintf("pruned-%d-%g", o.ExpectedTrigrams, o.FalsePositiveRate)
}

// TrigramIndex maps each two-token context to the tokens that followed it.
// Successor lists keep duplicates: repetition is the probability mass.
// The index is immutable once built and safe for concurrent readers.
type TrigramIndex struct {
	successors map[trigram.Context][]trigram.Token // context -> observed third tokens
	order      []trigram.Context                   // contexts in first-seen order
	trigrams   int                                 // sum of successor list lengths
}

// BuildIndex builds an index over every trigram of tokens
func BuildIndex(tokens []trigram.Token) *TrigramIndex {
	return BuildIndexWithOptions(tokens, DefaultIndexOptions())
}

// BuildIndexWithOptions builds an index, optionally skipping trigrams seen only once
func BuildIndexWithOptions(tokens []trigram.Token, opts IndexOptions) *TrigramIndex {
	idx := newTrigramIndex()
	if len(tokens) < 3 {
		return idx
	}

	var filter *bloom.BloomFilter
	if opts.PruneSingletons {
		if opts.ExpectedTrigrams == 0 {
			opts.ExpectedTrigrams = uint(len(tokens))
		}
		if opts.FalsePositiveRate <= 0 {
			opts.FalsePositiveRate = 0.01
		}
		filter = bloom.NewWithEstimates(opts.ExpectedTrigrams, opts.FalsePositiveRate)
	}

	for i := 0; i+2 < len(tokens); i++ {
		w1, w2, w3 := tokens[i], tokens[i+1], tokens[i+2]

		if filter != nil {
			key := trigramKey(w1, w2, w3)
			if !filter.Test(key) {
				// First sighting goes to the filter only
				filter.Add(key)
				continue
			}
		}

		idx.add(trigram.NewContext(w1, w2), w3)
	}

	return idx
}

func newTrigramIndex() *TrigramIndex {
	return &TrigramIndex{
		successors: make(map[trigram.Context][]trigram.Token),
	}
}

func (idx *TrigramIndex) add(ctx trigram.Context, next trigram.Token) {
	list, exists := idx.successors[ctx]
	if !exists {
		idx.order = append(idx.order, ctx)
	}
	idx.successors[ctx] = append(list, next)
	idx.trigrams++
}

// trigramKey hashes a trigram for the bloom filter
func trigramKey(tokens ...trigram.Token) []byte {
	h := fnv.New64a()
	for _, t := range tokens {
		h.Write([]byte(t.Word))
		h.Write([]byte{0})
		h.Write([]byte(t.Tag))
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}

// Lookup returns the successors observed after ctx
func (idx *TrigramIndex) Lookup(ctx trigram.Context) ([]trigram.Token, error) {
	list, ok := idx.successors[ctx]
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnseenContext, ctx)
	}
	return list, nil
}

// Len returns the number of distinct contexts
func (idx *TrigramIndex) Len() int {
	return len(idx.order)
}

// TrigramCount returns the sum of all successor list lengths
func (idx *TrigramIndex) TrigramCount() int {
	return idx.trigrams
}

// Contexts returns the contexts in first-seen order
func (idx *TrigramIndex) Contexts() []trigram.Context {
	out := make([]trigram.Context, len(idx.order))
	copy(out, idx.order)
	return out
}

// MostAmbiguousContext returns the context with the most successors.
// Ties go to the context seen first.
func (idx *TrigramIndex) MostAmbiguousContext() (trigram.Context, bool) {
	return idx.largest(func(trigram.Context) bool { return true })
}

// StartingContext returns the capitalized context with the most successors
func (idx *TrigramIndex) StartingContext() (trigram.Context, error) {
	ctx, ok := idx.largest(func(c trigram.Context) bool {
		return isCapitalized(c.W1.Word)
	})
	if !ok {
		return trigram.Context{}, ErrNoStartingContext
	}
	return ctx, nil
}

func (idx *TrigramIndex) largest(accept func(trigram.Context) bool) (trigram.Context, bool) {
	var best trigram.Context
	most := 0
	for _, ctx := range idx.order {
		if !accept(ctx) {
			continue
		}
		if n := len(idx.successors[ctx]); n > most {
			most = n
			best = ctx
		}
	}
	return best, most > 0
}

// IsTagged reports whether the indexed tokens are (word, tag) pairs.
// An empty index is not tagged.
func (idx *TrigramIndex) IsTagged() bool {
	ctx, ok := idx.MostAmbiguousContext()
	if !ok {
		return false
	}
	return ctx.W1.Tagged
}

// Tags returns the sorted distinct tags of all successors.
// The second return value is false for plain indexes.
func (idx *TrigramIndex) Tags() ([]string, bool) {
	if !idx.IsTagged() {
		return nil, false
	}

	seen := make(map[string]struct{})
	for _, list := range idx.successors {
		for _, t := range list {
			seen[t.Tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, true
}

// Stats returns statistics about the index
func (idx *TrigramIndex) Stats() IndexStats {
	distinct := make(map[trigram.Token]struct{})
	for _, list := range idx.successors {
		for _, t := range list {
			distinct[t] = struct{}{}
		}
	}

	return IndexStats{
		Contexts:           len(idx.order),
		Trigrams:           idx.trigrams,
		DistinctSuccessors: len(distinct),
		Tagged:             idx.IsTagged(),
	}
}

// IndexStats contains statistics about a trigram index
type IndexStats struct {
	Contexts           int  `json:"contexts"`
	Trigrams           int  `json:"trigrams"`
	DistinctSuccessors int  `json:"distinct_successors"`
	Tagged             bool `json:"tagged"`
}

// isCapitalized reports whether word starts with an upper-case letter and
// has no further upper-case letters
func isCapitalized(word string) bool {
	first, size := utf8.DecodeRuneInString(word)
	if first == utf8.RuneError || !unicode.IsUpper(first) {
		return false
	}
	for _, r := range word[size:] {
		if unicode.IsLetter(r) && !unicode.IsLower(r) {
			return false
		}
	}
	return true
}
