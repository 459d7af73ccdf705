package ai

import (
	"fmt"
	"strings"
)

const summarizePrompt = `You are an expert content analyst. Analyze the following text and provide:

1. A concise 2-3 sentence summary
2. Key points (3-5 bullet points highlighting main ideas)
3. Content hooks (3-5 compelling angles or interesting aspects that could engage an audience)

Text to analyze:
---
%s
---

Respond in JSON format:
{
  "summary": "2-3 sentence summary here",
  "key_points": ["point 1", "point 2", "point 3"],
  "hooks": ["hook 1", "hook 2", "hook 3"]
}
`

// BuildSummarizePrompt renders the analysis prompt for a summarize job.
func BuildSummarizePrompt(text string) string {
	return fmt.Sprintf(summarizePrompt, text)
}

const generateAssetPrompt = `You are a creative content writer specializing in %[1]s content.

Based on the following campaign summary and key points, create engaging %[1]s content:

Summary:
%[2]s

Key Points:
%[3]s

Content Hooks:
%[4]s

Channel: %[1]s
Requirements:
- Write compelling, platform-appropriate content
- Use the tone and style suitable for %[1]s
- Keep it concise and engaging
- Include a clear call-to-action if appropriate

Respond with just the content text, no additional formatting or explanation.`

// BuildGenerateAssetPrompt renders the channel-specific generation prompt.
func BuildGenerateAssetPrompt(channel, summary string, keyPoints, hooks []string) string {
	return fmt.Sprintf(generateAssetPrompt, channel, summary, numbered(keyPoints), numbered(hooks))
}

func numbered(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return strings.Join(lines, "\n")
}

// SupportedChannels lists valid generate_asset targets.
var SupportedChannels = []string{"twitter", "linkedin", "facebook", "instagram", "blog", "email"}
