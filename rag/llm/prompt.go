package llm

import (
	"fmt"
	"strings"
)

const SystemPrompt = "You are a helpful assistant. Use the provided context to answer the instruction."

// BuildPrompt numbers the context fragments from 1 under the instruction.
func BuildPrompt(question string, context []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\n\nContext:\n", question)
	for i, c := range context {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString("\nResponse:")
	return b.String()
}
