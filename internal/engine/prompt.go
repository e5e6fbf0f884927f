package engine

import (
	"fmt"
	"strings"

	"github.com/souschef-platform/souschef/internal/index"
)

const systemPromptTemplate = `You are a professional chef assistant. The user follows these dietary preferences: %s.
Here are recommended recipes based on their preferences:
%s
Provide a response considering these preferences strictly.`

// formatGrounding renders retrieved recipes into the grounding block that
// gets baked into the system instruction.
func formatGrounding(results []index.Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("**Title:** %s\n**Ingredients:** %s\n**Instructions:** %s",
			r.Record.Title, r.Record.Ingredients, r.Record.Directions)
	}
	return strings.Join(blocks, "\n\n")
}

// buildSystemPrompt embeds the stored preference and the grounding block
// into the generation instruction.
func buildSystemPrompt(preference string, results []index.Result) string {
	return fmt.Sprintf(systemPromptTemplate, preference, formatGrounding(results))
}
