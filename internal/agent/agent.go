package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/3xCaffeine/total-recall/internal/llm"
	"github.com/3xCaffeine/total-recall/internal/metrics"
	"github.com/3xCaffeine/total-recall/internal/retrieval"
)

const (
	ToolVectorSearch = "vector_search"
	DefaultTopK      = 5
	maxTopK          = 20

	FallbackModelError = "Sorry, I couldn't reach your memory just now. Please try again in a moment."
	FallbackEmpty      = "No response generated."

	systemInstruction = "You are the Total Recall assistant. Use the vector_search tool to fetch context from the user's " +
		"journal entries, todos and events before answering questions about past items, plans or follow-ups. " +
		"If search returns nothing, ask for a little more detail such as dates, names or topics and offer what you " +
		"can infer. Do not say you lack access. Summarize clearly and concisely using any retrieved snippets."

	clarificationContext = "Vector search returned no matching entries. Ask for useful clarifications (date, names, topic) " +
		"and give best-effort guidance without saying you lack access."
)

// Retriever is the part of retrieval.Engine the agent needs.
type Retriever interface {
	Query(ctx context.Context, q retrieval.Query) *retrieval.Result
}

type Input struct {
	UserID       string
	Prompt       string
	PreviousChat string
}

type Agent struct {
	Model     llm.Generator
	Retriever Retriever
	Log       *zap.Logger
	Metrics   *metrics.Collector
}

func New(model llm.Generator, r Retriever, log *zap.Logger, m *metrics.Collector) *Agent {
	return &Agent{Model: model, Retriever: r, Log: log, Metrics: m}
}

// Tools is the single tool declared on the first model call.
func Tools() []llm.FunctionDeclaration {
	return []llm.FunctionDeclaration{{
		Name: ToolVectorSearch,
		Description: "Searches the user's saved journal entries, todos and events using vector similarity. " +
			"Use this to retrieve past context before answering questions about history, plans or follow-ups.",
		Parameters: &llm.Schema{
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"query":   {Type: llm.TypeString, Description: "User's query to find relevant journal, todo or event content."},
				"user_id": {Type: llm.TypeString, Description: "The ID of the user whose data to search."},
				"top_k":   {Type: llm.TypeInteger, Description: "Number of top results to return (default: 5).", Default: DefaultTopK},
			},
			Required: []string{"query", "user_id"},
		},
	}}
}

// Respond answers the prompt. It makes one model call, or two when the model
// asks for the search tool, and always returns user-facing text.
func (a *Agent) Respond(ctx context.Context, in Input) string {
	log := a.Log.With(zap.String("user_id", in.UserID))

	first, err := a.Model.Generate(ctx, &llm.Request{
		System: systemInstruction,
		Prompt: withHistory(in.PreviousChat, in.Prompt),
		Tools:  Tools(),
	})
	a.Metrics.ModelCall("chat", err)
	if err != nil {
		log.Warn("chat model call failed", zap.Error(err))
		return FallbackModelError
	}

	call := first.FirstFunctionCall()
	if call == nil {
		return orFallback(first.Text())
	}
	if call.Name != ToolVectorSearch {
		log.Warn("model requested unknown tool", zap.String("tool", call.Name))
		return orFallback(first.Text())
	}

	args := parseSearchArgs(call.Args, in.Prompt)
	if args.UserID != "" && args.UserID != in.UserID {
		log.Warn("ignoring model-supplied user id", zap.String("requested_user_id", args.UserID))
	}

	res := a.Retriever.Query(ctx, retrieval.Query{
		UserID:       in.UserID,
		Text:         args.Query,
		VectorLimit:  args.TopK,
		IncludeGraph: true,
	})
	log.Debug("tool executed",
		zap.String("tool", call.Name),
		zap.Int("top_k", args.TopK),
		zap.Int("vector_results", len(res.VectorResults)),
		zap.Int("graph_results", len(res.GraphResults)),
	)

	second, err := a.Model.Generate(ctx, &llm.Request{
		Prompt: followUp(in.PreviousChat, toolContext(res), in.Prompt),
	})
	a.Metrics.ModelCall("chat_followup", err)
	if err != nil {
		log.Warn("chat follow-up model call failed", zap.Error(err))
		return FallbackModelError
	}
	return orFallback(second.Text())
}

type searchArgs struct {
	Query  string
	UserID string
	TopK   int
}

func parseSearchArgs(raw map[string]any, prompt string) searchArgs {
	args := searchArgs{TopK: DefaultTopK}
	if q, ok := raw["query"].(string); ok && strings.TrimSpace(q) != "" {
		args.Query = q
	} else {
		args.Query = prompt
	}
	if u, ok := raw["user_id"].(string); ok {
		args.UserID = u
	}
	if k, ok := asInt(raw["top_k"]); ok && k > 0 {
		args.TopK = min(k, maxTopK)
	}
	return args
}

// asInt accepts the numeric shapes decoded tool arguments arrive in.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func toolContext(res *retrieval.Result) string {
	if res == nil || res.Empty() {
		return clarificationContext
	}
	return "Vector search results:\n" + res.SynthesizedContext
}

func withHistory(previous, prompt string) string {
	if strings.TrimSpace(previous) == "" {
		return prompt
	}
	return fmt.Sprintf("Previous Conversation:\n%s\n\nCurrent query: %s", previous, prompt)
}

func followUp(previous, retrieved, prompt string) string {
	if strings.TrimSpace(previous) == "" {
		return fmt.Sprintf("%s\n\nPlease answer the user's query: %s", retrieved, prompt)
	}
	return fmt.Sprintf("Previous Conversation:\n%s\n\n%s\n\nPlease answer the user's query: %s", previous, retrieved, prompt)
}

func orFallback(text string) string {
	if strings.TrimSpace(text) == "" {
		return FallbackEmpty
	}
	return text
}
