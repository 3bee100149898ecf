package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/AlexanderModestov/aiassistant/internal/config"
)

const defaultModelName = "gemini-1.5-flash-latest"

// Turn is one message of a multi-turn prompt. Role is "user" or "model".
type Turn struct {
	Role    string
	Content string
}

// Result carries the generated text plus token accounting from the backend.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Request is a single generation call: a system instruction, replayed
// conversation turns (the last turn must be from "user"), and an output cap.
type Request struct {
	System          string
	Turns           []Turn
	MaxOutputTokens int32
}

// Generator is the generative-text backend seen by the rest of the service.
// The pipeline performs no retries; a failed call is a failed call.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{client: client, model: defaultModelName}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if len(req.Turns) == 0 {
		return nil, fmt.Errorf("request has no turns")
	}
	last := req.Turns[len(req.Turns)-1]
	if last.Role != "user" {
		return nil, fmt.Errorf("last turn must be from 'user', got %q", last.Role)
	}

	model := c.client.GenerativeModel(c.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.MaxOutputTokens > 0 {
		maxTokens := req.MaxOutputTokens
		model.GenerationConfig = genai.GenerationConfig{MaxOutputTokens: &maxTokens}
	}

	session := model.StartChat()
	for _, turn := range req.Turns[:len(req.Turns)-1] {
		session.History = append(session.History, &genai.Content{
			Role:  turn.Role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return nil, fmt.Errorf("gemini SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini response had no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("gemini response contained no text parts")
	}

	result := &Result{Text: text.String()}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}
