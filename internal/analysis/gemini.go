package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel はGEMINI_MODEL未指定時に使うモデル名。
const DefaultModel = "gemini-2.0-flash"

// DefaultTemperature は分析文の生成に使う温度。事実に沿った安定した文章を優先する。
const DefaultTemperature float32 = 0.2

// GeminiConfig はGeminiGeneratorの設定。
// ProjectIDが設定されている場合はVertex AI、そうでなければGemini APIキーで接続する。
type GeminiConfig struct {
	ProjectID   string
	Location    string
	APIKey      string
	Model       string
	Temperature float32
}

// Configured は接続に必要な情報が揃っているかを返す。
func (c GeminiConfig) Configured() bool {
	return c.ProjectID != "" || c.APIKey != ""
}

// GeminiGenerator はgenai SDKを使ったTextGenerator実装。
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

var _ TextGenerator = (*GeminiGenerator)(nil)

// NewGeminiGenerator はGeminiクライアントを生成する。
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if !cfg.Configured() {
		return nil, errors.New("GCP_PROJECT_ID または GEMINI_API_KEY が設定されていません")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := &genai.ClientConfig{APIKey: cfg.APIKey}
	if cfg.ProjectID != "" {
		location := cfg.Location
		if location == "" {
			location = "us-central1"
		}
		clientCfg = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.ProjectID,
			Location: location,
		}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

// Generate はプロンプトを1回送信し、応答テキストを返す。リトライはしない。
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("Gemini generation failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("Gemini returned an empty response")
	}
	return text, nil
}
