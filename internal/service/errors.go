package service

import "errors"

var (
	// ErrUnseenContext is returned when a context was never observed in the corpus
	ErrUnseenContext = errors.New("unseen context")

	// ErrNoCandidate is returned when a context has successors but none survive filtering
	ErrNoCandidate = errors.New("no candidate after filtering")

	// ErrNoStartingContext is returned when no capitalized context exists and no seed was given
	ErrNoStartingContext = errors.New("no starting context found; supply an explicit seed")

	// ErrEmptyCorpus is returned when a generator is built from an empty token sequence
	ErrEmptyCorpus = errors.New("corpus has no tokens")

	// ErrCorpusNotFound is returned by the generator service for unknown corpus names
	ErrCorpusNotFound = errors.New("corpus not found")

	// ErrCorpusExists is returned when registering a corpus under a name already in use
	ErrCorpusExists = errors.New("corpus already registered")

	// ErrLimitExceeded is returned when a corpus or requested length exceeds configured limits
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrSeedMismatch is returned when a seed does not match the corpus variant
	ErrSeedMismatch = errors.New("seed tags must be given for tagged corpora and omitted for plain ones")

	// ErrCacheCorrupt is returned when a persisted index cannot be decoded
	ErrCacheCorrupt = errors.New("index cache corrupt")
)
