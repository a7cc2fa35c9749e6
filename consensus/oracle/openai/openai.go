// Package openai provides an Oracle backed by the OpenAI chat completion API.
package openai

import (
	"context"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/consensus-cluster/mhc2c/consensus/oracle"
)

const defaultModel = "gpt-4o-mini"

// Client is an oracle.Oracle that generates text through OpenAI chat
// completions. The per-call RoleHint becomes the system message.
type Client struct {
	client *goopenai.Client
	model  string
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the model selected from the environment.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// NewClient builds a Client from the environment: OPENAI_API_KEY must be
// set (or readable from the container secret path), OPENAI_MODEL is
// optional and defaults to gpt-4o-mini.
func NewClient(opts ...Option) (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		raw, err := os.ReadFile("/run/secrets/openai_api_key")
		if err != nil {
			return nil, oracle.NewOracleError("OPENAI_API_KEY not set", nil)
		}
		apiKey = strings.TrimSpace(string(raw))
	}

	c := &Client{
		client: goopenai.NewClient(apiKey),
		model:  os.Getenv("OPENAI_MODEL"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.model == "" {
		c.model = defaultModel
	}
	return c, nil
}

// Generate implements oracle.Oracle.
func (c *Client) Generate(ctx context.Context, prompt string, opts oracle.Options) (string, error) {
	system := opts.RoleHint
	if system == "" {
		system = "You are a helpful assistant."
	}
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if opts.MaxTokens > 0 {
		req.MaxCompletionTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", oracle.NewOracleError("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", oracle.NewOracleError("no choices returned", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
