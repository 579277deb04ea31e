package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/genai"

	"sheetwright/internal/config"
	"sheetwright/internal/logging"
)

// GeminiClient implements Completer over the Gemini API.
// The underlying genai client is built on first use so that commands that
// never generate keep working without an API key.
type GeminiClient struct {
	cfg     config.GenerationConfig
	timeout time.Duration

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a Gemini completer from generation settings.
func NewGeminiClient(cfg config.GenerationConfig) *GeminiClient {
	return &GeminiClient{
		cfg:     cfg,
		timeout: cfg.GetTimeout(),
	}
}

// Ready reports a *config.ConfigurationError when no API key is configured.
func (c *GeminiClient) Ready() error {
	return c.cfg.CheckAPIKey()
}

func (c *GeminiClient) genaiClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if err := c.Ready(); err != nil {
		return nil, err
	}

	cc := &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	c.client = client
	return client, nil
}

// Complete sends one GenerateContent request.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	client, err := c.genaiClient(ctx)
	if err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryAPI, "GenerateContent "+req.Model)
	defer timer.Stop()

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.SystemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(reqCtx, req.Model, genai.Text(req.Prompt), gc)
	if err != nil {
		if terr := requestTimeout(ctx, reqCtx, c.timeout); terr != nil {
			return "", terr
		}
		return "", fromGenAIError(err)
	}
	return resp.Text(), nil
}

// requestTimeout reports a *ServiceError when reqCtx ran out of time while
// the caller's ctx is still live. Errors from a done caller ctx pass through.
func requestTimeout(ctx, reqCtx context.Context, timeout time.Duration) error {
	if ctx.Err() != nil || !errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return nil
	}
	return &ServiceError{
		Code:    504,
		Status:  "DEADLINE_EXCEEDED",
		Message: fmt.Sprintf("the generation service did not answer within %s", timeout),
	}
}

// fromGenAIError maps genai API failures onto *ServiceError; other errors
// (transport, context) pass through unchanged.
func fromGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ServiceError{Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &ServiceError{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return err
}
