package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"markov-go/internal/config"
	"markov-go/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// GenerationServer exposes the generator service as MCP tools
type GenerationServer struct {
	server           *mcp.Server
	generatorService *service.GeneratorService
	logger           *zap.Logger
	handler          *mcp.StreamableHTTPHandler
}

type GenerateParams struct {
	Corpus   string   `json:"corpus" jsonschema:"the name of a registered corpus"`
	Length   *int     `json:"length,omitempty" jsonschema:"target number of tokens; defaults to 100 when omitted"`
	Seed     []string `json:"seed,omitempty" jsonschema:"two words to start from instead of the corpus starting context"`
	SeedTags []string `json:"seed_tags,omitempty" jsonschema:"part-of-speech tags of the two seed words, for tagged corpora"`
}

// length returns the requested length, or -1 for the service default
func (p GenerateParams) length() (int, error) {
	if p.Length == nil {
		return -1, nil
	}
	if *p.Length < 0 {
		return 0, fmt.Errorf("length must not be negative, got %d", *p.Length)
	}
	return *p.Length, nil
}

type ListCorporaParams struct{}

func NewGenerationServer(generatorService *service.GeneratorService, cfg config.McpConfig, logger *zap.Logger) *GenerationServer {
	server := &GenerationServer{
		generatorService: generatorService,
		logger:           logger,
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "pseudorandom_text",
		Description: "Generate text from a registered corpus that tries to balance quotes and parentheses and to end on sentence-final punctuation",
	}, server.handlePseudorandom)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "markov_text",
		Description: "Generate exactly the requested number of tokens from a registered corpus with plain trigram sampling",
	}, server.handleMarkov)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list_corpora",
		Description: "List the registered corpora with their token and context counts",
	}, server.handleListCorpora)

	server.handler = mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	server.server = mcpServer
	return server
}

// Handler serves the MCP streamable HTTP transport
func (s *GenerationServer) Handler() http.Handler {
	return s.handler
}

func (s *GenerationServer) handlePseudorandom(ctx context.Context, req *mcp.CallToolRequest, args GenerateParams) (*mcp.CallToolResult, any, error) {
	s.logger.Info("Handling pseudorandom_text request", zap.String("corpus", args.Corpus), zap.Intp("length", args.Length))

	length, err := args.length()
	if err != nil {
		return s.toolError("Invalid length", err), nil, nil
	}

	seed, err := s.generatorService.SeedContext(args.Corpus, args.Seed, args.SeedTags)
	if err != nil {
		return s.toolError("Invalid seed", err), nil, nil
	}

	generation, err := s.generatorService.Pseudorandom(ctx, args.Corpus, seed, length)
	if err != nil {
		s.logger.Error("Failed to generate text", zap.String("corpus", args.Corpus), zap.Error(err))
		return s.toolError("Failed to generate text", err), nil, nil
	}

	text := generation.Text
	if generation.Aborted {
		text = fmt.Sprintf("%s\n\n(stopped early: %s)", text, generation.AbortReason)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

func (s *GenerationServer) handleMarkov(ctx context.Context, req *mcp.CallToolRequest, args GenerateParams) (*mcp.CallToolResult, any, error) {
	s.logger.Info("Handling markov_text request", zap.String("corpus", args.Corpus), zap.Intp("length", args.Length))

	length, err := args.length()
	if err != nil {
		return s.toolError("Invalid length", err), nil, nil
	}

	seed, err := s.generatorService.SeedContext(args.Corpus, args.Seed, args.SeedTags)
	if err != nil {
		return s.toolError("Invalid seed", err), nil, nil
	}

	generation, err := s.generatorService.Markov(ctx, args.Corpus, seed, length)
	if err != nil {
		s.logger.Error("Failed to generate text", zap.String("corpus", args.Corpus), zap.Error(err))
		return s.toolError("Failed to generate text", err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: generation.Text}},
	}, nil, nil
}

func (s *GenerationServer) handleListCorpora(ctx context.Context, req *mcp.CallToolRequest, args ListCorporaParams) (*mcp.CallToolResult, any, error) {
	corpora := s.generatorService.List(ctx)
	if len(corpora) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "No corpora registered."}},
		}, nil, nil
	}

	var result strings.Builder
	for _, c := range corpora {
		variant := "plain"
		if c.Index.Tagged {
			variant = "tagged"
		}
		result.WriteString(fmt.Sprintf("%s: %d tokens, %d contexts, %s\n", c.Name, c.TokenCount, c.Index.Contexts, variant))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: result.String()}},
	}, nil, nil
}

// toolError reports a failure inside the tool result so the client sees it
func (s *GenerationServer) toolError(message string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %v", message, err)}},
	}
}
