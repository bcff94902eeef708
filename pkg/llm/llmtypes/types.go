// Package llmtypes holds the generation request types shared by pkg/llm
// and its client implementations, breaking the import cycle between them.
package llmtypes

import (
	"context"

	"google.golang.org/genai"
)

// Example is a single-shot example pair folded into the conversation
// before the user message.
type Example struct {
	Input  string
	Output string
}

// Request describes one structured generation call. Schema constrains the
// decoded output; a nil Schema yields free-form JSON.
type Request struct {
	System      string
	Examples    []Example
	User        string
	Schema      *genai.Schema
	Temperature *float64
}

// Client generates schema-constrained JSON from a language model
type Client interface {
	// GenerateJSON runs one generation and returns the raw JSON text
	GenerateJSON(ctx context.Context, req Request) (string, error)
}
