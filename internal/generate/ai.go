package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zjrosen/autohub/internal/log"
)

const (
	// DefaultBaseURL is the Anthropic API endpoint.
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultModel      = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens  = 4000
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 2

	apiKeyEnv = "ANTHROPIC_API_KEY"
)

// ErrNoAPIKey means no API key was configured or found in the environment.
var ErrNoAPIKey = errors.New("no API key configured")

// AIConfig configures AIStrategy.
type AIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// MaxRetries applies to connection errors and retryable statuses. Zero
	// selects DefaultMaxRetries, a negative value disables retries.
	MaxRetries int
	// HTTPClient overrides the SDK's default transport.
	HTTPClient *http.Client
}

// APIKeyFromEnv returns key, or ANTHROPIC_API_KEY when key is empty.
func APIKeyFromEnv(key string) string {
	if key != "" {
		return key
	}
	return os.Getenv(apiKeyEnv)
}

// AIStrategy asks a remote model for the script through the Messages API.
type AIStrategy struct {
	cfg    AIConfig
	client anthropic.Client
}

// NewAIStrategy returns ErrNoAPIKey when cfg carries no key.
func NewAIStrategy(cfg AIConfig) (*AIStrategy, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	retries := cfg.MaxRetries
	switch {
	case retries == 0:
		retries = DefaultMaxRetries
	case retries < 0:
		retries = 0
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(retries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &AIStrategy{cfg: cfg, client: anthropic.NewClient(opts...)}, nil
}

// Name implements Strategy.
func (s *AIStrategy) Name() string { return "ai" }

// Generate implements Strategy.
func (s *AIStrategy) Generate(ctx context.Context, req Request) (string, error) {
	log.Info(log.CatGenerate, "Calling model", "model", s.cfg.Model)
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.cfg.Model),
		MaxTokens: int64(s.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("model API returned status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("call model: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if msg.StopReason == anthropic.StopReasonMaxTokens {
		log.Warn(log.CatGenerate, "Model output hit the token limit", "max_tokens", s.cfg.MaxTokens)
	}
	code := stripFences(text.String())
	if code == "" {
		return "", errors.New("model returned no text")
	}
	return code + "\n", nil
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Write a complete Python automation workflow script for the request below.\n\n")
	fmt.Fprintf(&b, "Category: %s\nDescription: %s\n\n", req.category(), strings.TrimSpace(req.Description))
	b.WriteString(`The script must follow this contract exactly:

1. The file starts with a module docstring delimited by """ whose first line
   is WORKFLOW_META: followed by two-space indented keys: name, description,
   category, version, author, and a parameters mapping.
2. Each parameter has type (one of string, multiline-text, file-path, choice,
   boolean), description, required, an optional default and, for choice,
   a choices list such as [a, b].
3. Strings with special characters are double quoted. No other YAML
   features are allowed.
4. A class defines configure(self, **kwargs), validate(self) returning True
   or raising ValueError, and execute(self) returning a dict with "status"
   set to "success" and the result under "payload".
5. Only the Python standard library may be imported.

Return only the Python source, with no explanation and no markdown.
`)
	if req.UseExamples {
		b.WriteString("\nExample of a valid workflow:\n\n")
		if example, err := Skeleton(Request{Category: req.category()}); err == nil {
			b.WriteString(example)
		}
		for _, ex := range req.Examples {
			b.WriteString("\nAnother example:\n\n")
			b.WriteString(ex)
		}
	}
	return b.String()
}
