package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"markov-go/internal/model/trigram"
	"markov-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CorpusController struct {
	generatorService *service.GeneratorService
	logger           *zap.Logger
}

func NewCorpusController(generatorService *service.GeneratorService, logger *zap.Logger) *CorpusController {
	return &CorpusController{
		generatorService: generatorService,
		logger:           logger,
	}
}

// RegisterCorpusRequest carries either plain tokens or (word, tag) pairs
type RegisterCorpusRequest struct {
	Name         string      `json:"name"`
	Tokens       []string    `json:"tokens"`
	TaggedTokens [][2]string `json:"tagged_tokens"`
	UseCache     bool        `json:"use_cache"`
}

// GenerateRequest asks for one generation. Seed holds two words; SeedTags
// holds their tags and is required for tagged corpora.
type GenerateRequest struct {
	Length   int      `json:"length" binding:"gte=0"`
	Seed     []string `json:"seed" binding:"omitempty,len=2"`
	SeedTags []string `json:"seed_tags" binding:"omitempty,len=2"`
}

// GenerationResponse wraps a generation with request metadata
type GenerationResponse struct {
	ID     string `json:"id"`
	Corpus string `json:"corpus"`
	Mode   string `json:"mode"`
	*service.Generation
}

func (cc *CorpusController) RegisterCorpus(c *gin.Context) {
	var request RegisterCorpusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		cc.badRequest(c, err.Error())
		return
	}

	var tokens []trigram.Token
	switch {
	case len(request.Tokens) > 0 && len(request.TaggedTokens) > 0:
		cc.badRequest(c, "tokens and tagged_tokens are mutually exclusive")
		return
	case len(request.TaggedTokens) > 0:
		tokens = trigram.TaggedSequence(request.TaggedTokens)
	default:
		tokens = trigram.PlainSequence(request.Tokens)
	}

	cc.logger.Info("Registering corpus",
		zap.String("corpus", request.Name),
		zap.Int("tokens", len(tokens)),
		zap.Bool("use_cache", request.UseCache))

	corpus, err := cc.generatorService.Register(c.Request.Context(), request.Name, tokens, request.UseCache)
	if err != nil {
		cc.respondError(c, "Failed to register corpus", err)
		return
	}

	c.JSON(http.StatusCreated, corpus.Info())
}

func (cc *CorpusController) ListCorpora(c *gin.Context) {
	corpora := cc.generatorService.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"corpora": corpora,
		"count":   len(corpora),
	})
}

func (cc *CorpusController) DescribeCorpus(c *gin.Context) {
	details, err := cc.generatorService.Describe(c.Request.Context(), c.Param("name"))
	if err != nil {
		cc.respondError(c, "Failed to describe corpus", err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (cc *CorpusController) DeleteCorpus(c *gin.Context) {
	name := c.Param("name")

	purge, err := strconv.ParseBool(c.DefaultQuery("purge_cache", "false"))
	if err != nil {
		cc.badRequest(c, "purge_cache must be a boolean")
		return
	}

	if err := cc.generatorService.Remove(c.Request.Context(), name, purge); err != nil {
		cc.respondError(c, "Failed to delete corpus", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deleted":      name,
		"purged_cache": purge,
	})
}

func (cc *CorpusController) Pseudorandom(c *gin.Context) {
	cc.generate(c, "pseudorandom", cc.generatorService.Pseudorandom)
}

func (cc *CorpusController) Markov(c *gin.Context) {
	cc.generate(c, "markov", cc.generatorService.Markov)
}

type generateFunc func(ctx context.Context, name string, seed *trigram.Context, length int) (*service.Generation, error)

func (cc *CorpusController) generate(c *gin.Context, mode string, run generateFunc) {
	name := c.Param("name")

	// an empty body or an omitted length asks for the default length
	request := GenerateRequest{Length: cc.generatorService.DefaultLength()}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			cc.badRequest(c, err.Error())
			return
		}
	}

	seed, err := cc.generatorService.SeedContext(name, request.Seed, request.SeedTags)
	if err != nil {
		cc.respondError(c, "Invalid seed", err)
		return
	}

	id := uuid.New().String()
	cc.logger.Debug("Generating text",
		zap.String("id", id),
		zap.String("corpus", name),
		zap.String("mode", mode),
		zap.Int("length", request.Length))

	generation, err := run(c.Request.Context(), name, seed, request.Length)
	if err != nil {
		cc.respondError(c, "Failed to generate text", err)
		return
	}

	c.JSON(http.StatusOK, GenerationResponse{
		ID:         id,
		Corpus:     name,
		Mode:       mode,
		Generation: generation,
	})
}

func (cc *CorpusController) badRequest(c *gin.Context, details string) {
	cc.logger.Error("Invalid request payload", zap.String("details", details))
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request payload",
		"details": details,
	})
}

// respondError maps service errors onto HTTP status codes
func (cc *CorpusController) respondError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrCorpusNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrCorpusExists):
		status = http.StatusConflict
	case errors.Is(err, service.ErrUnseenContext), errors.Is(err, service.ErrNoStartingContext):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrLimitExceeded), errors.Is(err, service.ErrEmptyCorpus), errors.Is(err, service.ErrSeedMismatch):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		cc.logger.Error(message, zap.Error(err))
	} else {
		cc.logger.Warn(message, zap.Int("status", status), zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
