package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"markov-go/internal/config"
	"markov-go/internal/metrics"
	"markov-go/internal/model/trigram"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Corpus is a registered token sequence and the generator built over it
type Corpus struct {
	ID         string
	Name       string
	TokenCount int
	CreatedAt  time.Time
	CacheKey   string
	Generator  *Generator
}

// Info summarizes the corpus
func (c *Corpus) Info() CorpusInfo {
	return CorpusInfo{
		ID:         c.ID,
		Name:       c.Name,
		TokenCount: c.TokenCount,
		CreatedAt:  c.CreatedAt,
		Cache:      c.Generator.CacheStatus(),
		Index:      c.Generator.Index().Stats(),
	}
}

// CorpusInfo contains statistics about a registered corpus
type CorpusInfo struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	TokenCount int         `json:"token_count"`
	CreatedAt  time.Time   `json:"created_at"`
	Cache      CacheStatus `json:"cache"`
	Index      IndexStats  `json:"index"`
}

// CorpusDetails adds introspection results to CorpusInfo
type CorpusDetails struct {
	CorpusInfo
	Tags            []string         `json:"tags,omitempty"`
	StartingContext *trigram.Context `json:"starting_context,omitempty"`
	MostAmbiguous   *trigram.Context `json:"most_ambiguous_context,omitempty"`
}

// ServiceOptions configures a GeneratorService
type ServiceOptions struct {
	Store              IndexStore     // nil disables index caching
	Index              IndexOptions   // Index build options for every corpus
	DefaultLength      int            // Used when a request passes a negative length
	MaxLength          int            // Upper bound on requested lengths; 0 = unlimited
	MaxTokens          int            // Upper bound on corpus size; 0 = unlimited
	MaxStepsFactor     int            // Step cap multiplier for constrained generation
	Exclude            []string       // Exclusion set; nil uses DefaultExclusions
	FailOnCorruptCache bool           // Refuse to rebuild over a corrupt cache entry
	NewChooser         func() Chooser // Per-corpus random source, shared by its requests; nil uses math/rand/v2
}

// GeneratorService manages named corpora and runs generations against them
type GeneratorService struct {
	corpora map[string]*Corpus // corpus name -> corpus
	opts    ServiceOptions
	logger  *zap.Logger
	mu      sync.RWMutex // Protects corpora
}

// NewGeneratorService creates an empty service
func NewGeneratorService(opts ServiceOptions, logger *zap.Logger) *GeneratorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultLength <= 0 {
		opts.DefaultLength = DefaultLength
	}
	return &GeneratorService{
		corpora: make(map[string]*Corpus),
		opts:    opts,
		logger:  logger,
	}
}

// NewGeneratorServiceFromConfig opens the configured index store and creates a service
func NewGeneratorServiceFromConfig(cfg *config.Config, logger *zap.Logger) (*GeneratorService, error) {
	store, err := OpenIndexStore(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	return NewGeneratorService(ServiceOptions{
		Store: store,
		Index: IndexOptions{
			PruneSingletons:   cfg.Index.PruneSingletons,
			ExpectedTrigrams:  cfg.Index.ExpectedTrigrams,
			FalsePositiveRate: cfg.Index.FalsePositiveRate,
		},
		DefaultLength:      cfg.Generation.DefaultLength,
		MaxLength:          cfg.App.MaxLength,
		MaxTokens:          cfg.App.MaxTokens,
		MaxStepsFactor:     cfg.Generation.MaxStepsFactor,
		Exclude:            cfg.Generation.Exclude,
		FailOnCorruptCache: cfg.Cache.FailOnCorrupt,
	}, logger), nil
}

// OpenIndexStore returns the store selected by the cache config, or nil when caching is off
func OpenIndexStore(cfg config.CacheConfig, logger *zap.Logger) (IndexStore, error) {
	switch cfg.Backend {
	case config.CacheBackendFile:
		store, err := NewFileIndexStore(cfg.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file index store: %w", err)
		}
		return store, nil
	case config.CacheBackendBadger:
		store, err := NewBadgerIndexStore(BadgerStoreConfig{
			Path:       cfg.Dir,
			InMemory:   cfg.InMemory,
			SyncWrites: cfg.SyncWrites,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger index store: %w", err)
		}
		return store, nil
	case config.CacheBackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// Register builds a generator over tokens and stores it under name.
// An empty name is replaced by a generated id.
func (s *GeneratorService) Register(ctx context.Context, name string, tokens []trigram.Token, useCache bool) (*Corpus, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyCorpus
	}
	if s.opts.MaxTokens > 0 && len(tokens) > s.opts.MaxTokens {
		return nil, fmt.Errorf("%w: corpus has %d tokens, limit is %d", ErrLimitExceeded, len(tokens), s.opts.MaxTokens)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	if name == "" {
		name = id
	}

	s.mu.RLock()
	_, exists := s.corpora[name]
	s.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrCorpusExists, name)
	}

	opts := GeneratorOptions{
		Exclude:            s.opts.Exclude,
		MaxStepsFactor:     s.opts.MaxStepsFactor,
		Index:              s.opts.Index,
		FailOnCorruptCache: s.opts.FailOnCorruptCache,
	}
	if s.opts.NewChooser != nil {
		opts.Chooser = s.opts.NewChooser()
	}
	if useCache && s.opts.Store != nil {
		opts.Store = s.opts.Store
		opts.CacheKey = name + "-" + CorpusKey(tokens)
	}

	gen, err := NewGenerator(tokens, opts, s.logger.With(zap.String("corpus", name)))
	if err != nil {
		return nil, fmt.Errorf("failed to build generator for %s: %w", name, err)
	}

	corpus := &Corpus{
		ID:         id,
		Name:       name,
		TokenCount: len(tokens),
		CreatedAt:  time.Now(),
		CacheKey:   gen.CacheKey(),
		Generator:  gen,
	}

	s.mu.Lock()
	if _, exists := s.corpora[name]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCorpusExists, name)
	}
	s.corpora[name] = corpus
	metrics.Corpora.Set(float64(len(s.corpora)))
	s.mu.Unlock()

	stats := gen.Index().Stats()
	s.logger.Info("Registered corpus",
		zap.String("corpus", name),
		zap.String("id", id),
		zap.Int("tokens", len(tokens)),
		zap.Int("contexts", stats.Contexts),
		zap.Bool("tagged", stats.Tagged),
		zap.String("cache", string(gen.CacheStatus())))

	return corpus, nil
}

// Get returns the corpus registered under name
func (s *GeneratorService) Get(name string) (*Corpus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	corpus, ok := s.corpora[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCorpusNotFound, name)
	}
	return corpus, nil
}

// List returns all corpora sorted by name
func (s *GeneratorService) List(ctx context.Context) []CorpusInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]CorpusInfo, 0, len(s.corpora))
	for _, c := range s.corpora {
		infos = append(infos, c.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Describe returns statistics and introspection results for a corpus
func (s *GeneratorService) Describe(ctx context.Context, name string) (*CorpusDetails, error) {
	corpus, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	gen := corpus.Generator
	details := &CorpusDetails{CorpusInfo: corpus.Info()}
	if tags, ok := gen.Tags(); ok {
		details.Tags = tags
	}
	if start, err := gen.StartingContext(); err == nil {
		details.StartingContext = &start
	}
	if ambiguous, ok := gen.MostAmbiguousContext(); ok {
		details.MostAmbiguous = &ambiguous
	}
	return details, nil
}

// Remove unregisters a corpus, optionally deleting its cached index
func (s *GeneratorService) Remove(ctx context.Context, name string, purgeCache bool) error {
	s.mu.Lock()
	corpus, ok := s.corpora[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCorpusNotFound, name)
	}
	delete(s.corpora, name)
	metrics.Corpora.Set(float64(len(s.corpora)))
	s.mu.Unlock()

	if purgeCache && corpus.CacheKey != "" && s.opts.Store != nil {
		if err := s.opts.Store.Delete(corpus.CacheKey); err != nil {
			return err
		}
	}

	s.logger.Info("Removed corpus", zap.String("corpus", name), zap.Bool("purge_cache", purgeCache))
	return nil
}

// DefaultLength is the length used for requests that omit one
func (s *GeneratorService) DefaultLength() int {
	return s.opts.DefaultLength
}

// Pseudorandom runs constrained generation against a corpus
func (s *GeneratorService) Pseudorandom(ctx context.Context, name string, seed *trigram.Context, length int) (*Generation, error) {
	corpus, length, err := s.prepare(ctx, name, length)
	if err != nil {
		return nil, err
	}
	return corpus.Generator.Pseudorandom(seed, length)
}

// Markov runs unconstrained generation against a corpus
func (s *GeneratorService) Markov(ctx context.Context, name string, seed *trigram.Context, length int) (*Generation, error) {
	corpus, length, err := s.prepare(ctx, name, length)
	if err != nil {
		return nil, err
	}

	tokens, err := corpus.Generator.MarkovTokens(seed, length)
	if err != nil {
		return nil, err
	}
	return &Generation{
		Tokens: tokens,
		Text:   Detokenize(tokens),
		Steps:  len(tokens),
	}, nil
}

// SeedContext builds a seed for the named corpus from two words and, for
// tagged corpora, their two tags. No words means no seed.
func (s *GeneratorService) SeedContext(name string, words, tags []string) (*trigram.Context, error) {
	if len(words) == 0 {
		if len(tags) > 0 {
			return nil, ErrSeedMismatch
		}
		return nil, nil
	}
	if len(words) != 2 || (len(tags) != 0 && len(tags) != 2) {
		return nil, fmt.Errorf("%w: need two seed words, got %d", ErrSeedMismatch, len(words))
	}

	corpus, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	tagged := len(tags) > 0
	if tagged != corpus.Generator.IsTagged() {
		return nil, ErrSeedMismatch
	}

	seed := trigram.NewContext(trigram.Plain(words[0]), trigram.Plain(words[1]))
	if tagged {
		seed = trigram.NewContext(trigram.WithTag(words[0], tags[0]), trigram.WithTag(words[1], tags[1]))
	}
	return &seed, nil
}

func (s *GeneratorService) prepare(ctx context.Context, name string, length int) (*Corpus, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	corpus, err := s.Get(name)
	if err != nil {
		return nil, 0, err
	}
	if length < 0 {
		length = s.opts.DefaultLength
	}
	if s.opts.MaxLength > 0 && length > s.opts.MaxLength {
		return nil, 0, fmt.Errorf("%w: length %d, limit is %d", ErrLimitExceeded, length, s.opts.MaxLength)
	}
	return corpus, length, nil
}

// Close releases the index store if it holds resources
func (s *GeneratorService) Close() error {
	if closer, ok := s.opts.Store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
