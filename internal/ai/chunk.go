package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// ChunkText splits text into pieces of at most maxLen characters, breaking
// on sentence boundaries and falling back to word boundaries when a single
// sentence exceeds the limit.
func ChunkText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	current := ""
	for _, sentence := range sentenceEnd.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if len(current)+len(sentence) > maxLen {
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
				current = ""
			}
			if len(sentence) > maxLen {
				for _, word := range strings.Split(sentence, " ") {
					if len(current)+1+len(word) > maxLen {
						if current != "" {
							chunks = append(chunks, strings.TrimSpace(current))
						}
						current = word
					} else {
						current += " " + word
					}
				}
			} else {
				current = sentence
			}
		} else {
			if current != "" {
				current += ". " + sentence
			} else {
				current = sentence
			}
		}
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks
}

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// ParseJSONContent unmarshals a completion result that should be JSON,
// tolerating a markdown code-fence wrapper around it.
func ParseJSONContent(content string, v any) error {
	content = strings.TrimSpace(content)
	if m := codeFence.FindStringSubmatch(content); m != nil {
		content = m[1]
	}
	return json.Unmarshal([]byte(content), v)
}
