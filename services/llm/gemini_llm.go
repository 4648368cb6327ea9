package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel matches the model the dashboard was tuned against.
const DefaultGeminiModel = "gemini-2.0-flash-exp"

type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient builds a Gemini backend from GOOGLE_AI_API_KEY and
// GOOGLE_AI_MODEL, falling back to the container secret when the env var
// is absent.
func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	apiKey := os.Getenv("GOOGLE_AI_API_KEY")
	model := os.Getenv("GOOGLE_AI_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/google_ai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the Google AI API key from container secrets")
		} else {
			slog.Error("GOOGLE_AI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("GOOGLE_AI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = DefaultGeminiModel
		slog.Warn("GOOGLE_AI_MODEL not set, defaulting to "+DefaultGeminiModel)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	slog.Info("Initializing Gemini client", "model", model)
	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) Model() string {
	return g.model
}

// Generate implements the Client interface.
func (g *GeminiClient) Generate(ctx context.Context, prompt string, params GenerationParams) (*Completion, error) {
	slog.Debug("Generating text via Gemini", "model", g.model)

	config := &genai.GenerateContentConfig{
		SafetySettings: geminiSafetySettings(),
	}
	if params.Temperature != nil {
		config.Temperature = params.Temperature
	}
	if params.TopP != nil {
		config.TopP = params.TopP
	}
	if params.TopK != nil {
		topK := float32(*params.TopK)
		config.TopK = &topK
	}
	if params.MaxTokens != nil {
		config.MaxOutputTokens = int32(*params.MaxTokens)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		slog.Error("Gemini API call failed", "error", err)
		return nil, Classify(g.model, err)
	}

	text := resp.Text()
	if text == "" {
		slog.Warn("Gemini returned an empty response")
		return nil, Classify(g.model, fmt.Errorf("gemini returned no content"))
	}

	completion := &Completion{
		Text:  text,
		Model: g.model,
	}
	if usage := resp.UsageMetadata; usage != nil {
		completion.PromptTokens = int(usage.PromptTokenCount)
		completion.ResponseTokens = int(usage.CandidatesTokenCount)
	} else {
		// The API omits usage metadata on some responses. Fall back to a
		// whitespace token estimate so cost accounting stays non-zero.
		completion.PromptTokens = len(strings.Fields(prompt))
		completion.ResponseTokens = len(strings.Fields(text))
	}

	slog.Debug("Received response from Gemini",
		"prompt_tokens", completion.PromptTokens,
		"response_tokens", completion.ResponseTokens)
	return completion, nil
}

func geminiSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  category,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		})
	}
	return settings
}
