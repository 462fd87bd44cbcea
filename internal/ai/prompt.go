package ai

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an assistant specialized in project management and academic planning.
Your goal is to help people turn vague instructions into clear, concrete steps.

Analyze the task below and answer with valid JSON using exactly this structure:
{
  "steps": [
    "Concrete, actionable steps to complete the task",
    "Each step starts with an action verb",
    "Example: Define the scope of the project"
  ],
  "ambiguities": [
    "Information that is missing or unclear",
    "Example: The exact delivery date is not specified"
  ],
  "questions": [
    "Specific questions that would resolve the ambiguities",
    "Example: What format is required for the document?"
  ]
}

Answer ONLY with the JSON, without any text before or after it.`

func buildPrompt(task string) string {
	return fmt.Sprintf(`%s

Task to analyze:
Analyze the following task or instruction:
"%s"

Break it down into concrete steps and identify which information is missing or ambiguous.
Answer in JSON as described.`, systemPrompt, task)
}

// buildFallbackPrompt is a shorter prompt used after a safety block.
func buildFallbackPrompt(task string) string {
	cleaned := strings.ReplaceAll(task, `"`, "")
	return fmt.Sprintf(`Analyze this task and answer in JSON:
Task: %s

Response format (JSON):
{
  "steps": ["step 1", "step 2", "step 3"],
  "ambiguities": ["missing info 1", "missing info 2"],
  "questions": ["question 1", "question 2"]
}`, strings.TrimSpace(cleaned))
}
