// Package llm provides structured JSON generation against language models.
package llm

import (
	"context"
	"fmt"

	"github.com/onset-project/onset/pkg/llm/llmtypes"
)

// Example is a single-shot example pair folded into the conversation
// before the user message.
type Example = llmtypes.Example

// Request describes one structured generation call. Schema constrains the
// decoded output; a nil Schema yields free-form JSON.
type Request = llmtypes.Request

// Client generates schema-constrained JSON from a language model
type Client = llmtypes.Client

// NoopClient is a no-op implementation used when no model is configured
type NoopClient struct{}

// NewNoopClient creates a new NoopClient
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

// GenerateJSON always fails: there is no model to call
func (c *NoopClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	return "", fmt.Errorf("llm client not configured")
}
