package prompt

import "strings"

// compressRatio is the target fraction of words kept by Compress.
const compressRatio = 0.6

// stopWords are dropped by the lightweight compressor. Function words carry
// little signal for a model that sees the surviving content words.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "shall",
		"should", "may", "might", "must", "can", "could", "am", "it", "its",
		"this", "that", "these", "those", "i", "you", "he", "she", "we",
		"they", "me", "him", "her", "us", "them", "my", "your", "his",
		"our", "their", "of", "in", "to", "for", "with", "on", "at", "from",
		"by", "as", "into", "about", "between", "through", "during", "just",
		"also", "very", "really", "quite", "rather", "too", "so", "then",
	} {
		stopWords[w] = struct{}{}
	}
}

// compressText removes stop words until the target ratio is reached. When
// every word is a stop word, it falls back to the unfiltered prefix so the
// prompt never collapses to nothing.
func compressText(text string, ratio float64) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	targetLen := int(float64(len(words)) * ratio)
	if targetLen < 1 {
		targetLen = 1
	}

	var kept []string
	for _, w := range words {
		trimmed := strings.ToLower(strings.Trim(w, ".,!?;:"))
		if _, stop := stopWords[trimmed]; stop {
			continue
		}
		kept = append(kept, w)
		if len(kept) >= targetLen {
			break
		}
	}

	if len(kept) == 0 {
		kept = words[:targetLen]
	}

	return strings.TrimSpace(strings.Join(kept, " "))
}

// Compress shrinks the non-system messages of the prompt and returns the
// compressed messages, the token count after compression, and the tokens
// saved (never negative). System messages pass through untouched: the
// instruction and context blocks must stay verbatim.
func Compress(messages []Message, originalTokens int) ([]Message, int, int) {
	compressed := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			compressed = append(compressed, m)
			continue
		}
		compressed = append(compressed, Message{
			Role:    m.Role,
			Content: compressText(m.Content, compressRatio),
		})
	}

	after := CountMessages(compressed)
	saved := originalTokens - after
	if saved < 0 {
		saved = 0
	}
	return compressed, after, saved
}
