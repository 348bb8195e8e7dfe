package llm

import (
	"context"
	"strings"
)

// Generator is a language model that answers one request with one response.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Embedder turns texts into dense vectors, one per text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Request struct {
	System string
	Prompt string

	// ResponseSchema constrains the output to JSON of this shape.
	ResponseSchema *Schema
	Tools          []FunctionDeclaration
	Temperature    *float32
}

type FunctionDeclaration struct {
	Name        string
	Description string
	Parameters  *Schema
}

type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
)

// Schema is the subset of OpenAPI schema the model providers accept.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Required    []string
	Nullable    bool
	Default     any
}

type Response struct {
	Candidates []Candidate
}

type Candidate struct {
	Parts []Part
}

type Part struct {
	Text         string
	FunctionCall *FunctionCall
}

type FunctionCall struct {
	Name string
	Args map[string]any
}

// Text joins the text parts of the first candidate.
func (r *Response) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Parts {
		if p.FunctionCall == nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// FirstFunctionCall scans candidates, then parts within each candidate,
// and returns the first function call found. Later calls are ignored.
func (r *Response) FirstFunctionCall() *FunctionCall {
	if r == nil {
		return nil
	}
	for _, c := range r.Candidates {
		for _, p := range c.Parts {
			if p.FunctionCall != nil {
				return p.FunctionCall
			}
		}
	}
	return nil
}

// TextResponse is a single-candidate text response.
func TextResponse(text string) *Response {
	return &Response{Candidates: []Candidate{{Parts: []Part{{Text: text}}}}}
}
