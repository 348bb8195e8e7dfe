package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/3xCaffeine/total-recall/internal/metrics"
)

// EmbeddingDimensions is the output size requested from the embedding model.
const EmbeddingDimensions = 768

type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	RatePerSec     float64
}

// Gemini implements Generator and Embedder on the Gemini API.
type Gemini struct {
	client         *genai.Client
	model          string
	embeddingModel string
	limiter        *rate.Limiter
	log            *zap.Logger
	metrics        *metrics.Collector
}

func NewGemini(ctx context.Context, cfg GeminiConfig, log *zap.Logger, m *metrics.Collector) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	return &Gemini{
		client:         client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		limiter:        rate.NewLimiter(limit, 1),
		log:            log,
		metrics:        m,
	}, nil
}

func (g *Gemini) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{Temperature: req.Temperature}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toGenaiSchema(req.ResponseSchema)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	g.metrics.ModelCall("generate", err)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return fromGenaiResponse(resp), nil
}

func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	dims := int32(EmbeddingDimensions)

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	g.metrics.ModelCall("embed", err)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed content: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, errors.New("embed content: empty embedding")
		}
		out[i] = e.Values
	}
	return out, nil
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}
	for _, c := range resp.Candidates {
		var cand Candidate
		if c != nil && c.Content != nil {
			for _, p := range c.Content.Parts {
				if p == nil {
					continue
				}
				part := Part{Text: p.Text}
				if p.FunctionCall != nil {
					part.FunctionCall = &FunctionCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args}
				}
				cand.Parts = append(cand.Parts, part)
			}
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(string(s.Type))),
		Description: s.Description,
		Required:    s.Required,
		Default:     s.Default,
		Items:       toGenaiSchema(s.Items),
	}
	if s.Nullable {
		out.Nullable = genai.Ptr(true)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	return out
}
