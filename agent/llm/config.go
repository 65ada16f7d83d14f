package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	openrouterx "github.com/ppec-ai/copilot/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	PlannerModel          string  `envconfig:"PLANNER_MODEL" split_words:"true"`
	ExecutorModel         string  `envconfig:"EXECUTOR_MODEL" split_words:"true"`
	SummarizerModel       string  `envconfig:"SUMMARIZER_MODEL" split_words:"true"`
	PlannerTemperature    float32 `envconfig:"PLANNER_TEMPERATURE" split_words:"true" default:"-1"`
	ExecutorTemperature   float32 `envconfig:"EXECUTOR_TEMPERATURE" split_words:"true" default:"-1"`
	SummarizerTemperature float32 `envconfig:"SUMMARIZER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(role contractx.AgentRole) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case contractx.RolePlanner:
		if v := strings.TrimSpace(c.PlannerModel); v != "" {
			modelName = v
		}
		if c.PlannerTemperature >= 0 {
			temp = c.PlannerTemperature
		}
	case contractx.RoleExecutor:
		if v := strings.TrimSpace(c.ExecutorModel); v != "" {
			modelName = v
		}
		if c.ExecutorTemperature >= 0 {
			temp = c.ExecutorTemperature
		}
	case contractx.RoleSummarizer:
		if v := strings.TrimSpace(c.SummarizerModel); v != "" {
			modelName = v
		}
		if c.SummarizerTemperature >= 0 {
			temp = c.SummarizerTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
