// Package textgen produces marketing copy for extracted products through an
// OpenAI-compatible chat-completions endpoint.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrGenerationExhausted is returned once every key/model combination has
// been tried without producing usable text. Callers degrade to empty
// descriptions, never abort extraction.
var ErrGenerationExhausted = errors.New("text generation exhausted all keys and models")

// Generator is the text-generation boundary the extractor depends on.
type Generator interface {
	Generate(ctx context.Context, name, brand string) (string, error)
}

// Description is the parsed two-section reply.
type Description struct {
	Short string
	Long  string
}

// The adapter contract: a "1. Short:" line followed by a "2. Long:" section
// with prose and "- " bullets. Anything else is malformed.
var descriptionGrammar = regexp.MustCompile(`(?s)1\.\s*Short:\s*(.+?)\s*\n\s*2\.\s*Long:\s*(.+)`)

// ParseDescription matches text against the two-section contract. The second
// result is false when the reply does not follow the grammar; it never
// panics or returns an error upward.
func ParseDescription(text string) (Description, bool) {
	m := descriptionGrammar.FindStringSubmatch(text)
	if m == nil {
		return Description{}, false
	}
	return Description{
		Short: strings.TrimSpace(m[1]),
		Long:  strings.TrimSpace(m[2]),
	}, true
}

// Config controls the completion client.
type Config struct {
	BaseURL string
	Models  []string
	Timeout time.Duration
}

// Client calls the chat-completions endpoint, rotating keys per request and
// retrying per key, per model.
type Client struct {
	cfg    Config
	ring   *KeyRing
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, ring *KeyRing) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{"deepseek/deepseek-chat:free"}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:    cfg,
		ring:   ring,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default().With("component", "textgen"),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate asks for a two-part description of the product. Every configured
// key is tried once, each with every configured model, before giving up.
func (c *Client) Generate(ctx context.Context, name, brand string) (string, error) {
	prompt := buildPrompt(name, brand)

	for attempt := 0; attempt < c.ring.Len(); attempt++ {
		key := c.ring.Next()
		for _, model := range c.cfg.Models {
			text, err := c.complete(ctx, key, model, prompt)
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				c.logger.Warn("completion attempt failed",
					"model", model, "product", name, "error", err)
				continue
			}
			if strings.TrimSpace(text) == "" {
				c.logger.Warn("completion returned empty content",
					"model", model, "product", name)
				continue
			}
			return text, nil
		}
	}

	return "", ErrGenerationExhausted
}

func (c *Client) complete(ctx context.Context, key, model, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func buildPrompt(name, brand string) string {
	return fmt.Sprintf(`You are a copywriter for a motorcycle gear shop. Write an original product description for %q by %q in exactly two parts:

1. Short: <one sentence, at most 10 words>
2. Long: <a short paragraph followed by bullet points, each bullet on its own line prefixed by "- ">

Reply with nothing besides the two numbered parts.`, name, brand)
}
