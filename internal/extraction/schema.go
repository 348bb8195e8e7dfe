package extraction

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/3xCaffeine/total-recall/internal/llm"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ResponseSchema is sent with the extraction request so the model emits
// a document Parse accepts.
var ResponseSchema = &llm.Schema{
	Type:     llm.TypeObject,
	Required: []string{"metadata", "entities", "relationships", "todos", "events"},
	Properties: map[string]*llm.Schema{
		"metadata": {
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"entry_datetime": {Type: llm.TypeString, Nullable: true, Description: "ISO-8601 datetime of the entry if mentioned."},
				"source_title":   {Type: llm.TypeString, Nullable: true, Description: "Title or source of the entry."},
				"timezone":       {Type: llm.TypeString, Nullable: true, Description: "IANA timezone associated with the entry."},
			},
		},
		"entities": {
			Type: llm.TypeArray,
			Items: &llm.Schema{
				Type:     llm.TypeObject,
				Required: []string{"id", "name", "type"},
				Properties: map[string]*llm.Schema{
					"id":              {Type: llm.TypeString, Description: "Local id such as e1, e2."},
					"name":            {Type: llm.TypeString},
					"normalized_name": {Type: llm.TypeString, Nullable: true},
					"type":            {Type: llm.TypeString, Description: "person, location, organization, project, topic, ..."},
					"attributes":      {Type: llm.TypeObject, Nullable: true},
				},
			},
		},
		"relationships": {
			Type: llm.TypeArray,
			Items: &llm.Schema{
				Type:     llm.TypeObject,
				Required: []string{"source", "type", "target", "description"},
				Properties: map[string]*llm.Schema{
					"source":      {Type: llm.TypeString, Description: "Entity id of the source."},
					"type":        {Type: llm.TypeString},
					"target":      {Type: llm.TypeString, Nullable: true, Description: "Entity id of the target."},
					"description": {Type: llm.TypeString},
					"datetime":    {Type: llm.TypeString, Nullable: true},
				},
			},
		},
		"todos": {
			Type: llm.TypeArray,
			Items: &llm.Schema{
				Type:     llm.TypeObject,
				Required: []string{"id", "task", "priority"},
				Properties: map[string]*llm.Schema{
					"id":               {Type: llm.TypeString, Description: "Local id such as t1."},
					"task":             {Type: llm.TypeString},
					"priority":         {Type: llm.TypeString, Description: "must_do, high, normal or low."},
					"due":              {Type: llm.TypeString, Nullable: true, Description: "ISO-8601 date or datetime."},
					"related_entities": {Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}},
				},
			},
		},
		"events": {
			Type: llm.TypeArray,
			Items: &llm.Schema{
				Type:     llm.TypeObject,
				Required: []string{"id", "title", "should_sync_calendar"},
				Properties: map[string]*llm.Schema{
					"id":                   {Type: llm.TypeString, Description: "Local id such as ev1."},
					"title":                {Type: llm.TypeString},
					"datetime":             {Type: llm.TypeString, Nullable: true, Description: "ISO-8601 datetime."},
					"location":             {Type: llm.TypeString, Nullable: true},
					"duration_minutes":     {Type: llm.TypeInteger, Nullable: true},
					"related_entities":     {Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}},
					"should_sync_calendar": {Type: llm.TypeBoolean},
				},
			},
		},
	},
}

// Parse decodes and validates a model response. Anything short of a
// well-formed Result is a *ParseError.
func Parse(raw string) (*Result, error) {
	raw = stripFence(strings.TrimSpace(raw))
	if raw == "" {
		return nil, &ParseError{Reason: "empty response from model"}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var res Result
	if err := dec.Decode(&res); err != nil {
		return nil, &ParseError{Reason: "invalid json", Err: err}
	}
	if err := validate.Struct(&res); err != nil {
		return nil, &ParseError{Reason: "schema mismatch", Err: err}
	}
	return &res, nil
}

// stripFence removes a ```json fence some models wrap around JSON output.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
