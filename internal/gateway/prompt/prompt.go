// Package prompt assembles the message list sent to a model and compresses
// it when the routing policy asks for it.
//
// Token counts are estimates: the gateway serves many backends with
// different tokenizers, so it uses a character-based heuristic (~4 chars per
// token for English text) plus the per-message chat overhead, rather than
// binding to any single vendor's tokenizer.
package prompt

import "strings"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message in the prompt sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemPrompt is the fixed instruction prepended to every request.
const SystemPrompt = "You are an AI assistant. Be helpful, accurate, and concise. " +
	"Respect user privacy — never ask for personal information."

const (
	// perMessageOverhead covers the role and framing tokens each chat
	// message costs on top of its content.
	perMessageOverhead = 4
	// replyPriming covers the tokens that prime the assistant's reply.
	replyPriming = 2
)

// EstimateTokens estimates the token count of text: one token per four
// characters, rounded up, never less than 1 for non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// CountMessages estimates the total token cost of a message list, including
// per-message overhead and reply priming.
func CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		total += EstimateTokens(m.Content)
	}
	total += replyPriming
	return total
}

// Build assembles the outgoing message list: the system prompt, an optional
// context block from memory retrieval, then the (masked) user prompt.
// Returns the messages and their estimated token count.
func Build(maskedPrompt string, context []string) ([]Message, int) {
	messages := []Message{
		{Role: RoleSystem, Content: SystemPrompt},
	}

	if len(context) > 0 {
		block := strings.Join(context, "\n---\n")
		messages = append(messages, Message{
			Role:    RoleSystem,
			Content: "Relevant context:\n" + block,
		})
	}

	messages = append(messages, Message{Role: RoleUser, Content: maskedPrompt})

	return messages, CountMessages(messages)
}
