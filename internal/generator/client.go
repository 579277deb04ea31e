// Package generator turns a spreadsheet instruction into a Python script by
// asking a hosted LLM, retrying transient service failures with backoff.
package generator

import "context"

// Request is one generation call.
type Request struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Temperature       float32
}

// Completer sends a single request to a text-generation service.
// Implementations report service failures as *ServiceError so the retry
// policy can classify them.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// readiness is implemented by completers that need configuration (an API
// key) before the first call.
type readiness interface {
	Ready() error
}
