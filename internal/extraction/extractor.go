package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/llm"
)

// ParseError means the model produced no usable Result. The entry it was
// extracted from must be marked failed and nothing fanned out.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "extraction: " + e.Reason
	}
	return fmt.Sprintf("extraction: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type Input struct {
	Content string
	// ReferenceTime anchors relative dates ("tomorrow"). It should already be
	// in the entry's timezone.
	ReferenceTime time.Time
	Timezone      string
}

type Extractor struct {
	Model llm.Generator
	Log   *zap.Logger
}

func NewExtractor(model llm.Generator, log *zap.Logger) *Extractor {
	return &Extractor{Model: model, Log: log}
}

// Extract asks the model for a Result. Transport errors are returned as-is
// (worth retrying); bad output is a *ParseError (not worth retrying).
func (x *Extractor) Extract(ctx context.Context, in Input) (*Result, error) {
	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	ref := in.ReferenceTime
	if loc, err := time.LoadLocation(tz); err == nil {
		ref = ref.In(loc)
	}

	temp := float32(0.2)
	resp, err := x.Model.Generate(ctx, &llm.Request{
		System:         systemPrompt + "\n\n" + fewShotExamples,
		Prompt:         userPrompt(in.Content, ref, tz),
		ResponseSchema: ResponseSchema,
		Temperature:    &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction model call: %w", err)
	}

	res, err := Parse(resp.Text())
	if err != nil {
		x.Log.Warn("extraction output rejected", zap.Error(err))
		return nil, err
	}
	if res.Metadata.Timezone == "" {
		res.Metadata.Timezone = tz
	}

	x.Log.Debug("extraction complete",
		zap.Int("entities", len(res.Entities)),
		zap.Int("relationships", len(res.Relationships)),
		zap.Int("todos", len(res.Todos)),
		zap.Int("events", len(res.Events)),
	)
	return res, nil
}
