package classify

const systemPrompt = `You classify a single message from a conversation between a developer and a coding assistant.

Respond with one JSON object and nothing else:
{
  "type": "code-change" | "question" | "clarification" | "discussion",
  "tags": ["up to 3 short lowercase tags"],
  "before_code": "code before the change, if the message shows it",
  "after_code": "code after the change, if the message shows it",
  "code_changes": "any other code in the message"
}

Omit the code fields when the message has no code.`

// reply is the JSON contract the external service answers with.
type reply struct {
	Type        string   `json:"type"`
	Tags        []string `json:"tags"`
	BeforeCode  *string  `json:"before_code"`
	AfterCode   *string  `json:"after_code"`
	CodeChanges *string  `json:"code_changes"`
}

const (
	externalTemperature = 0.2
	externalMaxTokens   = 512
)
