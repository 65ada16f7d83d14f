package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/planner.txt
	plannerRaw string

	//go:embed template/replanner.txt
	replannerRaw string

	//go:embed template/executor.txt
	executorRaw string

	//go:embed template/summarizer.txt
	summarizerRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Planner    string
	Replanner  string
	Executor   string
	Summarizer string
}

// LoadPromptSet returns the embedded prompts, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Planner:    strings.TrimSpace(plannerRaw),
		Replanner:  strings.TrimSpace(replannerRaw),
		Executor:   strings.TrimSpace(executorRaw),
		Summarizer: strings.TrimSpace(summarizerRaw),
	}
}
