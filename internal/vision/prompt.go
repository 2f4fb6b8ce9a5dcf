package vision

import "strings"

// Prompt instructs the model how to read a tablet image.
const Prompt = `You are an expert in understanding pharmaceutical information.
You will receive input images of tablets with their labels.
Based on the input image, you will:
1. Identify the name of the tablet from the label.
2. Search for its uses, side effects, precautions, dosage instructions, and interactions.
3. Provide a concise and accurate summary of the findings.
Ensure that the information is up-to-date and sourced from reliable medical websites.`

// BuildPrompt appends the user's details to Prompt.
func BuildPrompt(details string) string {
	var sb strings.Builder
	sb.WriteString(Prompt)
	sb.WriteString("\n\nTablet Details: ")
	sb.WriteString(strings.TrimSpace(details))
	sb.WriteString("\n\nSummary:")
	return sb.String()
}
