package reviewer

import (
	"fmt"
	"strings"
)

// systemPrompt frames the reviewer's role for every call.
const systemPrompt = "You are a progress monitoring assistant. Analyze the AI assistant's work and determine if it is making progress or stuck in a loop."

const userPromptTemplate = `You are monitoring an AI assistant's progress on a task.

Task: %s

Current iteration: %d

Previous progress assessments:
%s

Current output (last %d lines):
` + "```" + `
%s
` + "```" + `

Assess whether the assistant is:
1. Making meaningful progress (continue) - the assistant is generating code, making changes, or working toward the goal
2. Stuck in a loop or not progressing (abort) - the assistant is repeating itself, going in circles, or clearly failing to make progress

Respond with JSON in this exact format:
{
  "action": "continue|abort",
  "reason": "Brief explanation of your assessment"
}`

// buildUserPrompt fills the review template with the context for one call.
func buildUserPrompt(rc Context) string {
	summaries := "No previous assessments."
	if len(rc.PreviousSummaries) > 0 {
		numbered := make([]string, len(rc.PreviousSummaries))
		for i, s := range rc.PreviousSummaries {
			numbered[i] = fmt.Sprintf("%d. %s", i+1, s)
		}
		summaries = strings.Join(numbered, "\n")
	}

	lineCount := 0
	if rc.CurrentSample != "" {
		lineCount = strings.Count(rc.CurrentSample, "\n") + 1
	}

	return fmt.Sprintf(userPromptTemplate, rc.Task, rc.Iteration, summaries, lineCount, rc.CurrentSample)
}
