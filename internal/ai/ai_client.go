package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"offer-parser/internal/logger"
	"offer-parser/internal/model"
	"offer-parser/internal/service"

	"golang.org/x/time/rate"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
)

// Request settings for extraction calls.
const (
	temperature = 0.1
	maxTokens   = 2000
)

type Options struct {
	Provider string
	APIKey   string
	// Model and BaseURL fall back to the provider defaults when empty.
	Model   string
	BaseURL string
	// RateLimit is in requests per second; zero disables limiting.
	RateLimit  float64
	RateBurst  int
	HTTPClient *http.Client
}

type aiClient struct {
	provider   string
	apiKey     string
	model      string
	baseURL    string
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *logger.Logger
}

func NewAIClient(opts Options, logger *logger.Logger) service.Extractor {
	provider := opts.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	client := &aiClient{
		provider:   provider,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
	if client.model == "" {
		client.model = getModel(provider)
	}
	if client.baseURL == "" {
		client.baseURL = getBaseURL(provider)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return client
}

// getBaseURL returns the appropriate API base URL based on the provider
func getBaseURL(provider string) string {
	switch provider {
	case ProviderDeepSeek:
		return "https://api.deepseek.com"
	case ProviderGemini:
		return "https://generativelanguage.googleapis.com/v1beta"
	default:
		return "https://api.openai.com/v1"
	}
}

// getModel returns the appropriate model based on the provider
func getModel(provider string) string {
	switch provider {
	case ProviderDeepSeek:
		return "deepseek-chat"
	case ProviderGemini:
		return "gemini-2.0-flash"
	default:
		return "gpt-4o"
	}
}

// OpenAI/DeepSeek API request/response structures
type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Gemini API request/response structures
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate   `json:"candidates"`
	UsageMetadata geminiUsageMetadata `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Extract asks the provider for a JSON document matching schema and keeps only
// the declared fields. Failures come back as *service.ExtractionError.
func (a *aiClient) Extract(ctx context.Context, req service.ExtractRequest, schema *model.Schema) (*service.ExtractResult, error) {
	if schema == nil || schema.Document == nil {
		return nil, service.PermanentError(errors.New("no schema to extract with"))
	}
	systemPrompt, err := buildSystemPrompt(schema.Document)
	if err != nil {
		return nil, service.PermanentError(err)
	}
	userPrompt := buildUserPrompt(req)

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, service.TransientError(fmt.Errorf("rate limiter: %w", err))
		}
	}

	var content string
	var tokens service.Usage
	switch a.provider {
	case ProviderGemini:
		content, tokens, err = a.extractWithGemini(ctx, systemPrompt, userPrompt)
	default:
		content, tokens, err = a.extractWithOpenAIStyle(ctx, systemPrompt, userPrompt)
	}
	if err != nil {
		return nil, err
	}

	raw, err := decodeResponse(content)
	if err != nil {
		return nil, service.PermanentError(err)
	}
	doc, stripped, err := filterDocument(raw, schema.Document)
	if err != nil {
		return nil, service.PermanentError(err)
	}
	if len(stripped) > 0 {
		a.logger.Debug("Dropped undeclared fields:", strings.Join(stripped, ", "))
	}
	a.logger.Infof("Extracted %d fields with %s (%d tokens)", len(doc), a.model, tokens.TotalTokens)

	return &service.ExtractResult{
		Document:     doc,
		StrippedKeys: stripped,
		Model:        a.model,
		Usage:        tokens,
	}, nil
}

// extractWithOpenAIStyle handles extraction using OpenAI/DeepSeek style API
func (a *aiClient) extractWithOpenAIStyle(ctx context.Context, systemPrompt, userPrompt string) (string, service.Usage, error) {
	request := chatCompletionRequest{
		Model: a.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:      maxTokens,
		Temperature:    temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var resp chatCompletionResponse
	if err := a.post(ctx, a.baseURL+"/chat/completions", request, &resp, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+a.apiKey)
	}); err != nil {
		return "", service.Usage{}, err
	}

	if len(resp.Choices) == 0 {
		return "", service.Usage{}, service.PermanentError(errors.New("no choices returned from AI"))
	}
	return resp.Choices[0].Message.Content, service.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// extractWithGemini handles extraction using Google Gemini API
func (a *aiClient) extractWithGemini(ctx context.Context, systemPrompt, userPrompt string) (string, service.Usage, error) {
	request := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: userPrompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      temperature,
			MaxOutputTokens:  maxTokens,
			ResponseMimeType: "application/json",
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, a.model)
	var resp geminiResponse
	if err := a.post(ctx, url, request, &resp, func(r *http.Request) {
		r.Header.Set("x-goog-api-key", a.apiKey)
	}); err != nil {
		return "", service.Usage{}, err
	}

	if len(resp.Candidates) == 0 {
		return "", service.Usage{}, service.PermanentError(errors.New("no candidates returned from Gemini"))
	}
	if len(resp.Candidates[0].Content.Parts) == 0 {
		return "", service.Usage{}, service.PermanentError(errors.New("no content parts in Gemini response"))
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), service.Usage{
		PromptTokens:     resp.UsageMetadata.PromptTokenCount,
		CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      resp.UsageMetadata.TotalTokenCount,
	}, nil
}

// post sends a JSON request and decodes the JSON reply into out, classifying
// failures as transient or permanent.
func (a *aiClient) post(ctx context.Context, url string, request, out interface{}, auth func(*http.Request)) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return service.PermanentError(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return service.PermanentError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	auth(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return service.TransientError(fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if retryableStatus(resp.StatusCode) {
			return service.TransientError(err)
		}
		return service.PermanentError(err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return service.TransientError(fmt.Errorf("failed to read response: %w", err))
		}
		return service.PermanentError(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
