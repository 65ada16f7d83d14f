package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/ppec-ai/copilot/agent/contract"
)

const noAnswerText = "No relevant answer was found in the knowledge base."

// RAGFlowSearch answers knowledge-base queries through RAGFlow's
// OpenAI-compatible chat endpoint.
type RAGFlowSearch struct {
	client *openaisdk.Client
	model  string
}

func NewRAGFlowSearch(client *openaisdk.Client, model string) (*RAGFlowSearch, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: ragflow client is required", contractx.ErrValidation)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "model"
	}
	return &RAGFlowSearch{client: client, model: model}, nil
}

func (r *RAGFlowSearch) Search(ctx context.Context, query string, history []contractx.Message) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: query is empty", contractx.ErrValidation)
	}

	log.Info().Str("tool", ToolKnowledgeSearch).Str("query", query).Msg("invoking knowledge search")

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openaisdk.SystemMessage("You are a helpful assistant."))
	for _, m := range history {
		switch m.Role {
		case contractx.RoleAssistant:
			messages = append(messages, openaisdk.AssistantMessage(m.Content))
		default:
			messages = append(messages, openaisdk.UserMessage(m.Content))
		}
	}
	messages = append(messages, openaisdk.UserMessage(query))

	completion, err := r.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    r.model,
		Messages: messages,
	})
	if err != nil {
		var apiErr *openaisdk.Error
		switch {
		case errors.As(err, &apiErr):
			log.Error().Err(err).Msg("knowledge service returned an API error")
			return "", fmt.Errorf("%w: knowledge service rejected the request", contractx.ErrServiceUnavailable)
		case errors.Is(err, context.DeadlineExceeded):
			log.Error().Err(err).Msg("knowledge service timed out")
			return "", fmt.Errorf("%w: knowledge service timed out", contractx.ErrServiceUnavailable)
		default:
			log.Error().Err(err).Msg("unexpected knowledge service failure")
			return "", fmt.Errorf("knowledge search failed: %w", err)
		}
	}

	if len(completion.Choices) == 0 {
		return noAnswerText, nil
	}
	answer := strings.TrimSpace(completion.Choices[0].Message.Content)
	if answer == "" {
		log.Warn().Msg("knowledge service returned a successful response without content")
		return noAnswerText, nil
	}
	return answer, nil
}
