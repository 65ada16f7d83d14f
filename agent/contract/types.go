package contract

type AgentRole string

const (
	RolePlanner    AgentRole = "planner"
	RoleExecutor   AgentRole = "executor"
	RoleSummarizer AgentRole = "summarizer"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of reconstructed conversational context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record is one durable memory entry. Key is the turn id of the committed
// plan and doubles as the revert anchor; OwnerKey partitions records by
// session.
type Record struct {
	Key      string            `json:"key"`
	OwnerKey string            `json:"owner_key"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

const (
	MetadataPlan   = "plan"
	MetadataTurnID = "turn_id"
)
