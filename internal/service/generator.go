package service

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"

	"markov-go/internal/metrics"
	"markov-go/internal/model/trigram"

	"go.uber.org/zap"
)

const (
	// DefaultLength is the token count used when a caller passes a negative length
	DefaultLength = 100

	// DefaultMaxStepsFactor bounds constrained generation to this many multiples of the target length
	DefaultMaxStepsFactor = 10

	// minStepCap keeps short targets from hitting the step cap prematurely
	minStepCap = 1000

	sentenceTerminators = ".!?"
)

// Abort reasons reported by constrained generation
const (
	AbortUnseenContext = "unseen_context"
	AbortStepLimit     = "step_limit"
)

// Chooser picks a uniformly random index in [0, n)
type Chooser interface {
	IntN(n int) int
}

// globalChooser draws from the goroutine-safe math/rand/v2 source
type globalChooser struct{}

func (globalChooser) IntN(n int) int {
	return rand.IntN(n)
}

// lockedChooser serializes a chooser that is not safe for concurrent use,
// such as a seeded *rand.Rand shared by every request on a corpus
type lockedChooser struct {
	mu      sync.Mutex
	chooser Chooser
}

func (c *lockedChooser) IntN(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chooser.IntN(n)
}

// DefaultExclusions are the closers that must not be emitted when nothing is open
func DefaultExclusions() []string {
	return []string{closeQuote, closeParen}
}

// GeneratorOptions configures a Generator
type GeneratorOptions struct {
	Chooser            Chooser      // Random source, guarded by a mutex; nil uses math/rand/v2
	Exclude            []string     // Words banned while no closer is pending; nil uses DefaultExclusions
	MaxStepsFactor     int          // Step cap multiplier for constrained generation
	Index              IndexOptions // Index build options
	Store              IndexStore   // Index cache; nil disables caching
	CacheKey           string       // Cache key prefix; empty derives one from the corpus
	FailOnCorruptCache bool         // Return an error instead of rebuilding on a corrupt cache
}

// Generator produces text from a trigram index built once at construction
type Generator struct {
	index          *TrigramIndex
	tagged         bool
	label          func(trigram.Token) string // tag for tagged corpora, word otherwise
	chooser        Chooser
	exclude        map[string]struct{}
	maxStepsFactor int
	cacheStatus    CacheStatus
	cacheKey       string
	logger         *zap.Logger
}

// NewGenerator builds (or loads from cache) the index for tokens and
// returns a generator over it
func NewGenerator(tokens []trigram.Token, opts GeneratorOptions, logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Store == nil {
		idx := BuildIndexWithOptions(tokens, opts.Index)
		metrics.CacheResults.WithLabelValues(string(CacheDisabled)).Inc()
		logger.Debug("Built trigram index",
			zap.Int("tokens", len(tokens)),
			zap.Int("contexts", idx.Len()))
		return newGenerator(idx, CacheDisabled, "", opts, logger), nil
	}

	base := opts.CacheKey
	if base == "" {
		base = CorpusKey(tokens)
	}
	key := IndexKey(base, opts.Index)

	idx, status, err := LoadIndex(opts.Store, key)
	metrics.CacheResults.WithLabelValues(string(status)).Inc()
	switch status {
	case CacheHit:
		logger.Info("Loaded trigram index from cache",
			zap.String("store", opts.Store.Name()),
			zap.String("key", key),
			zap.Int("contexts", idx.Len()))
		return newGenerator(idx, status, key, opts, logger), nil
	case CacheCorrupt:
		if opts.FailOnCorruptCache {
			return nil, err
		}
		logger.Warn("Discarding corrupt trigram index cache",
			zap.String("store", opts.Store.Name()),
			zap.String("key", key),
			zap.Error(err))
	}

	idx = BuildIndexWithOptions(tokens, opts.Index)
	if err := SaveIndex(opts.Store, key, idx); err != nil {
		logger.Warn("Failed to persist trigram index",
			zap.String("store", opts.Store.Name()),
			zap.String("key", key),
			zap.Error(err))
	} else {
		logger.Info("Saved trigram index",
			zap.String("store", opts.Store.Name()),
			zap.String("key", key),
			zap.Int("contexts", idx.Len()),
			zap.Int("trigrams", idx.TrigramCount()))
	}

	return newGenerator(idx, status, key, opts, logger), nil
}

// NewGeneratorFromIndex wraps an existing index
func NewGeneratorFromIndex(idx *TrigramIndex, opts GeneratorOptions, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newGenerator(idx, CacheDisabled, "", opts, logger)
}

func newGenerator(idx *TrigramIndex, status CacheStatus, key string, opts GeneratorOptions, logger *zap.Logger) *Generator {
	var chooser Chooser = globalChooser{}
	if opts.Chooser != nil {
		chooser = &lockedChooser{chooser: opts.Chooser}
	}
	exclude := opts.Exclude
	if exclude == nil {
		exclude = DefaultExclusions()
	}
	factor := opts.MaxStepsFactor
	if factor <= 0 {
		factor = DefaultMaxStepsFactor
	}

	g := &Generator{
		index:          idx,
		tagged:         idx.IsTagged(),
		chooser:        chooser,
		exclude:        toSet(exclude...),
		maxStepsFactor: factor,
		cacheStatus:    status,
		cacheKey:       key,
		logger:         logger,
	}

	// The variant is fixed here for the generator's lifetime
	if g.tagged {
		g.label = func(t trigram.Token) string { return t.Tag }
	} else {
		g.label = func(t trigram.Token) string { return t.Word }
	}

	return g
}

// Generation is the outcome of one generation call
type Generation struct {
	Tokens      []string `json:"tokens"`
	Text        string   `json:"text"`
	Aborted     bool     `json:"aborted"`
	AbortReason string   `json:"abort_reason,omitempty"`
	Steps       int      `json:"steps"`
	Relaxed     int      `json:"relaxed"` // successors chosen ignoring a pending closer
	Forced      int      `json:"forced"`  // successors chosen from the exclusion set
}

// PseudorandomText generates text that tries to balance quotes and
// parentheses and to end on sentence-final punctuation
func (g *Generator) PseudorandomText(seed *trigram.Context, length int) (string, error) {
	gen, err := g.Pseudorandom(seed, length)
	if err != nil {
		return "", err
	}
	return gen.Text, nil
}

// Pseudorandom runs constrained generation and reports how it went.
// The only error is ErrNoStartingContext; dead ends end the text early
// with a forced period.
func (g *Generator) Pseudorandom(seed *trigram.Context, length int) (*Generation, error) {
	if length < 0 {
		length = DefaultLength
	}
	ctx, err := g.seed(seed)
	if err != nil {
		return nil, err
	}

	gen := &Generation{Tokens: make([]string, 0, length)}
	var pending []string
	maxSteps := g.stepCap(length)

	for {
		current := ctx.W1
		label := g.label(current)
		gen.Tokens = append(gen.Tokens, current.Word)
		gen.Steps++

		if len(gen.Tokens) >= length && len(pending) == 0 &&
			strings.ContainsAny(current.Word, sentenceTerminators) {
			break
		}

		switch label {
		case openParen:
			pending = append(pending, closeParen)
		case openQuote:
			pending = append(pending, closeQuote)
		}

		need, hasNeed := "", false
		if len(pending) > 0 {
			need, hasNeed = pending[len(pending)-1], true
		}

		next, rungName, err := g.climbLadder(ctx, g.buildLadder(need, hasNeed))
		if err != nil {
			g.abort(gen, AbortUnseenContext, err)
			return gen, nil
		}
		metrics.LadderRungs.WithLabelValues(rungName).Inc()

		switch rungName {
		case RungConstrained:
			if hasNeed {
				pending = pending[:len(pending)-1]
			}
		case RungRelaxed:
			gen.Relaxed++
		case RungForced:
			gen.Forced++
			g.logger.Debug("Forced to emit excluded token", zap.String("token", next.Word))
		}

		if gen.Steps >= maxSteps {
			g.abort(gen, AbortStepLimit, nil)
			return gen, nil
		}

		ctx = ctx.Advance(next)
	}

	gen.Text = Detokenize(gen.Tokens)
	metrics.Generations.WithLabelValues("pseudorandom").Inc()
	metrics.GeneratedTokens.Observe(float64(len(gen.Tokens)))
	g.logger.Debug("Generated pseudorandom text",
		zap.Int("tokens", len(gen.Tokens)),
		zap.Int("relaxed", gen.Relaxed),
		zap.Int("forced", gen.Forced))

	return gen, nil
}

// abort closes a generation early with a forced period
func (g *Generator) abort(gen *Generation, reason string, cause error) {
	gen.Aborted = true
	gen.AbortReason = reason
	gen.Text = Detokenize(gen.Tokens) + "."

	metrics.Generations.WithLabelValues("pseudorandom").Inc()
	metrics.Aborts.WithLabelValues(reason).Inc()
	metrics.GeneratedTokens.Observe(float64(len(gen.Tokens)))
	g.logger.Warn("Generation stopped early",
		zap.String("reason", reason),
		zap.Int("tokens", len(gen.Tokens)),
		zap.Error(cause))
}

func (g *Generator) stepCap(length int) int {
	limit := length * g.maxStepsFactor
	if limit < minStepCap {
		limit = minStepCap
	}
	return limit
}

// MarkovText generates exactly length tokens with no structural constraints
func (g *Generator) MarkovText(seed *trigram.Context, length int) (string, error) {
	tokens, err := g.MarkovTokens(seed, length)
	if err != nil {
		return "", err
	}
	return Detokenize(tokens), nil
}

// MarkovTokens samples exactly length surface tokens from the chain.
// Every visited context is looked up, the last one included, so a dead
// end anywhere fails with ErrUnseenContext.
func (g *Generator) MarkovTokens(seed *trigram.Context, length int) ([]string, error) {
	if length < 0 {
		length = DefaultLength
	}
	ctx, err := g.seed(seed)
	if err != nil {
		return nil, err
	}

	results := make([]string, 0, length)
	for i := 0; i < length; i++ {
		results = append(results, ctx.W1.Word)

		successors, err := g.index.Lookup(ctx)
		if err != nil {
			return nil, err
		}
		ctx = ctx.Advance(successors[g.chooser.IntN(len(successors))])
	}

	metrics.Generations.WithLabelValues("markov").Inc()
	metrics.GeneratedTokens.Observe(float64(len(results)))
	return results, nil
}

// seed returns the explicit seed or the index's starting context
func (g *Generator) seed(seed *trigram.Context) (trigram.Context, error) {
	if seed != nil {
		return *seed, nil
	}
	ctx, err := g.index.StartingContext()
	if err != nil {
		return trigram.Context{}, err
	}
	return ctx, nil
}

// IsTagged reports whether the generator runs in tagged mode
func (g *Generator) IsTagged() bool {
	return g.tagged
}

// Tags returns the sorted distinct tags; false for plain corpora
func (g *Generator) Tags() ([]string, bool) {
	return g.index.Tags()
}

// MostAmbiguousContext returns the context with the most successors
func (g *Generator) MostAmbiguousContext() (trigram.Context, bool) {
	return g.index.MostAmbiguousContext()
}

// StartingContext returns the default seed
func (g *Generator) StartingContext() (trigram.Context, error) {
	return g.index.StartingContext()
}

// Index returns the generator's read-only index
func (g *Generator) Index() *TrigramIndex {
	return g.index
}

// CacheStatus reports how the index was obtained
func (g *Generator) CacheStatus() CacheStatus {
	return g.cacheStatus
}

// CacheKey returns the store key of the index; empty when caching is off
func (g *Generator) CacheKey() string {
	return g.cacheKey
}

// IsUnseenContext reports whether err is a dead end in the chain
func IsUnseenContext(err error) bool {
	return errors.Is(err, ErrUnseenContext)
}
