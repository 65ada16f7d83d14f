package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/ppec-ai/copilot/agent/contract"
)

const ToolKnowledgeSearch = "knowledge_base.search"

// Catalog is the set of tools the executor may invoke. Tool names not in the
// catalog are rejected rather than silently ignored.
type Catalog struct {
	knowledge contractx.KnowledgeTool
}

func NewCatalog(knowledge contractx.KnowledgeTool) (*Catalog, error) {
	if knowledge == nil {
		return nil, fmt.Errorf("%w: knowledge tool is required", contractx.ErrValidation)
	}
	return &Catalog{knowledge: knowledge}, nil
}

// Infos describes the registered tools for model binding.
func (c *Catalog) Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolKnowledgeSearch,
			Desc: "Search the platform knowledge base for documentation, guides, and best practices.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Natural language query", Required: true},
			}),
		},
	}
}

// Execute runs a registered tool by name, passing the conversational history
// along for query refinement.
func (c *Catalog) Execute(ctx context.Context, name string, args map[string]any, history []contractx.Message) (string, error) {
	switch name {
	case ToolKnowledgeSearch:
		query, err := stringArg(args, "query")
		if err != nil {
			return "", err
		}
		return c.knowledge.Search(ctx, query, history)
	default:
		return "", fmt.Errorf("%w: tool=%q", contractx.ErrUnknownTool, name)
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", contractx.ErrValidation, key)
	}
	val, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", contractx.ErrValidation, key)
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return "", fmt.Errorf("%w: %s is empty", contractx.ErrValidation, key)
	}
	return val, nil
}
