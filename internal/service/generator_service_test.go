package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"markov-go/internal/config"
	"markov-go/internal/model/trigram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, opts ServiceOptions) *GeneratorService {
	t.Helper()
	if opts.NewChooser == nil {
		opts.NewChooser = func() Chooser { return rand.New(rand.NewPCG(1, 2)) }
	}
	svc := NewGeneratorService(opts, zap.NewNop())
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestGeneratorService_RegisterAndGenerate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ServiceOptions{})

	corpus, err := svc.Register(ctx, "prose", circular(prose), false)
	require.NoError(t, err)
	assert.Equal(t, "prose", corpus.Name)
	assert.NotEmpty(t, corpus.ID)
	assert.Empty(t, corpus.CacheKey)

	result, err := svc.Pseudorandom(ctx, "prose", nil, 20)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(result.Tokens), 20)
	assert.NotEmpty(t, result.Text)

	result, err = svc.Markov(ctx, "prose", nil, 15)
	require.NoError(t, err)
	assert.Len(t, result.Tokens, 15)
	assert.Equal(t, Detokenize(result.Tokens), result.Text)

	// a negative length uses the default, zero is honored
	result, err = svc.Markov(ctx, "prose", nil, -1)
	require.NoError(t, err)
	assert.Len(t, result.Tokens, DefaultLength)
	assert.Equal(t, DefaultLength, svc.DefaultLength())

	result, err = svc.Markov(ctx, "prose", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Tokens)
	assert.Equal(t, "", result.Text)
}

func TestGeneratorService_RegisterErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ServiceOptions{MaxTokens: 5})

	_, err := svc.Register(ctx, "empty", nil, false)
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	_, err = svc.Register(ctx, "big", words("a b c d e f"), false)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	_, err = svc.Register(ctx, "small", words("The cat sat ."), false)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "small", words("The dog sat ."), false)
	assert.ErrorIs(t, err, ErrCorpusExists)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.Register(cancelled, "late", words("The cat ."), false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeneratorService_GeneratedName(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})

	corpus, err := svc.Register(context.Background(), "", words("The cat sat ."), false)
	require.NoError(t, err)
	assert.Equal(t, corpus.ID, corpus.Name)

	got, err := svc.Get(corpus.ID)
	require.NoError(t, err)
	assert.Same(t, corpus, got)
}

func TestGeneratorService_UnknownCorpus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ServiceOptions{})

	_, err := svc.Get("nope")
	assert.ErrorIs(t, err, ErrCorpusNotFound)
	_, err = svc.Describe(ctx, "nope")
	assert.ErrorIs(t, err, ErrCorpusNotFound)
	_, err = svc.Pseudorandom(ctx, "nope", nil, 10)
	assert.ErrorIs(t, err, ErrCorpusNotFound)
	_, err = svc.Markov(ctx, "nope", nil, 10)
	assert.ErrorIs(t, err, ErrCorpusNotFound)
	assert.ErrorIs(t, svc.Remove(ctx, "nope", false), ErrCorpusNotFound)
}

func TestGeneratorService_LengthLimit(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ServiceOptions{MaxLength: 50, DefaultLength: 10})

	_, err := svc.Register(ctx, "prose", circular(prose), false)
	require.NoError(t, err)

	_, err = svc.Pseudorandom(ctx, "prose", nil, 51)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	_, err = svc.Markov(ctx, "prose", nil, 51)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	result, err := svc.Markov(ctx, "prose", nil, -1)
	require.NoError(t, err)
	assert.Len(t, result.Tokens, 10)
}

func TestGeneratorService_ListAndRemove(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ServiceOptions{})

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := svc.Register(ctx, name, words("The cat sat on the mat ."), false)
		require.NoError(t, err)
	}

	infos := svc.List(ctx)
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "mid", infos[1].Name)
	assert.Equal(t, "zeta", infos[2].Name)
	assert.Equal(t, 7, infos[0].TokenCount)
	assert.Equal(t, 5, infos[0].Index.Trigrams)
	assert.Equal(t, CacheDisabled, infos[0].Cache)

	require.NoError(t, svc.Remove(ctx, "mid", false))
	assert.Len(t, svc.List(ctx), 2)
	_, err := svc.Get("mid")
	assert.ErrorIs(t, err, ErrCorpusNotFound)
}

func TestGeneratorService_Describe(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ServiceOptions{})

	_, err := svc.Register(ctx, "tagged", trigram.TaggedSequence([][2]string{
		{"The", "AT"}, {"dog", "NN"}, {"ran", "VBD"}, {".", "."},
		{"The", "AT"}, {"dog", "NN"}, {"sat", "VBD"}, {".", "."},
	}), false)
	require.NoError(t, err)

	details, err := svc.Describe(ctx, "tagged")
	require.NoError(t, err)
	assert.Equal(t, []string{".", "AT", "NN", "VBD"}, details.Tags)
	assert.True(t, details.Index.Tagged)
	require.NotNil(t, details.StartingContext)
	assert.Equal(t, "The", details.StartingContext.W1.Word)
	assert.Equal(t, "dog", details.StartingContext.W2.Word)
	require.NotNil(t, details.MostAmbiguous)

	_, err = svc.Register(ctx, "lower", words("no capitals here at all"), false)
	require.NoError(t, err)
	details, err = svc.Describe(ctx, "lower")
	require.NoError(t, err)
	assert.Nil(t, details.StartingContext)
	assert.Nil(t, details.Tags)
}

func TestGeneratorService_CacheAcrossServices(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileIndexStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	tokens := circular(prose)

	first := newTestService(t, ServiceOptions{Store: store})
	corpus, err := first.Register(ctx, "prose", tokens, true)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, corpus.Generator.CacheStatus())
	assert.Equal(t, "prose-"+CorpusKey(tokens)+"-all", corpus.CacheKey)

	second := newTestService(t, ServiceOptions{Store: store})
	corpus, err = second.Register(ctx, "prose", tokens, true)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, corpus.Generator.CacheStatus())

	// opting out skips the store entirely
	uncached, err := second.Register(ctx, "prose-copy", tokens, false)
	require.NoError(t, err)
	assert.Equal(t, CacheDisabled, uncached.Generator.CacheStatus())

	// purging removes the entry so the next registration misses
	require.NoError(t, second.Remove(ctx, "prose", true))
	third := newTestService(t, ServiceOptions{Store: store})
	corpus, err = third.Register(ctx, "prose", tokens, true)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, corpus.Generator.CacheStatus())
}

func TestGeneratorService_CacheKeyedByIndexOptions(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileIndexStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	// every trigram occurs once, so pruning leaves nothing
	tokens := words("The cat sat on the mat while the dog ran .")

	plain := newTestService(t, ServiceOptions{Store: store})
	corpus, err := plain.Register(ctx, "pets", tokens, true)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, corpus.Generator.CacheStatus())
	assert.Equal(t, 9, corpus.Generator.Index().TrigramCount())

	pruneOpts := IndexOptions{PruneSingletons: true, ExpectedTrigrams: 1000, FalsePositiveRate: 0.01}
	pruned := newTestService(t, ServiceOptions{Store: store, Index: pruneOpts})
	corpus, err = pruned.Register(ctx, "pets", tokens, true)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, corpus.Generator.CacheStatus())
	assert.Zero(t, corpus.Generator.Index().TrigramCount())

	again := newTestService(t, ServiceOptions{Store: store, Index: pruneOpts})
	corpus, err = again.Register(ctx, "pets", tokens, true)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, corpus.Generator.CacheStatus())
	assert.Zero(t, corpus.Generator.Index().TrigramCount())

	// the unpruned entry is still there under its own key
	original := newTestService(t, ServiceOptions{Store: store})
	corpus, err = original.Register(ctx, "pets", tokens, true)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, corpus.Generator.CacheStatus())
	assert.Equal(t, 9, corpus.Generator.Index().TrigramCount())
}

func TestGeneratorService_ConcurrentGeneration(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ServiceOptions{})

	_, err := svc.Register(ctx, "prose", circular(prose), false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Pseudorandom(ctx, "prose", nil, 30)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Markov(ctx, "prose", nil, 30)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestNewGeneratorServiceFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Backend = config.CacheBackendBadger
	cfg.Cache.InMemory = true
	cfg.App.MaxLength = 30

	svc, err := NewGeneratorServiceFromConfig(cfg, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	corpus, err := svc.Register(ctx, "prose", circular(prose), true)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, corpus.Generator.CacheStatus())

	_, err = svc.Markov(ctx, "prose", nil, 31)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestOpenIndexStore(t *testing.T) {
	store, err := OpenIndexStore(config.CacheConfig{Backend: config.CacheBackendNone}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = OpenIndexStore(config.CacheConfig{Backend: config.CacheBackendFile, Dir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "file", store.Name())

	_, err = OpenIndexStore(config.CacheConfig{Backend: "redis"}, zap.NewNop())
	assert.Error(t, err)
}

func TestGeneratorService_SeedContext(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, ServiceOptions{})

	_, err := svc.Register(ctx, "plain", words("The cat sat ."), false)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "tagged", trigram.TaggedSequence([][2]string{
		{"The", "AT"}, {"cat", "NN"}, {"sat", "VBD"},
	}), false)
	require.NoError(t, err)

	seed, err := svc.SeedContext("plain", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, seed)

	seed, err = svc.SeedContext("plain", []string{"The", "cat"}, nil)
	require.NoError(t, err)
	assert.Equal(t, ctxOf("The", "cat"), *seed)

	seed, err = svc.SeedContext("tagged", []string{"The", "cat"}, []string{"AT", "NN"})
	require.NoError(t, err)
	assert.Equal(t, trigram.NewContext(trigram.WithTag("The", "AT"), trigram.WithTag("cat", "NN")), *seed)

	_, err = svc.SeedContext("tagged", []string{"The", "cat"}, nil)
	assert.ErrorIs(t, err, ErrSeedMismatch)
	_, err = svc.SeedContext("plain", []string{"The", "cat"}, []string{"AT", "NN"})
	assert.ErrorIs(t, err, ErrSeedMismatch)
	_, err = svc.SeedContext("plain", nil, []string{"AT", "NN"})
	assert.ErrorIs(t, err, ErrSeedMismatch)
	_, err = svc.SeedContext("plain", []string{"The"}, nil)
	assert.ErrorIs(t, err, ErrSeedMismatch)
	_, err = svc.SeedContext("nope", []string{"The", "cat"}, nil)
	assert.ErrorIs(t, err, ErrCorpusNotFound)
}
