package ragflow

import (
	"errors"
	"net/url"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// RAGFlow exposes an OpenAI-compatible chat completion API in front of the
// knowledge base, so the client is a plain OpenAI SDK client pointed at it.
type Config struct {
	BaseURL string        `split_words:"true" required:"true"`
	APIKey  string        `split_words:"true" required:"true"`
	Model   string        `split_words:"true" default:"model"`
	Timeout time.Duration `split_words:"true" default:"60s"`
}

func NewClient(cfg Config) (*openaisdk.Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("ragflow base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("ragflow api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := openaisdk.NewClient(
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(timeout),
	)
	return &client, nil
}

func MustNew(cfg Config) *openaisdk.Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}
