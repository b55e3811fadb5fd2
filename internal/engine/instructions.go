package engine

import (
	"fmt"
	"strings"
)

// Personality tags accepted by Instructions.
const (
	PersonalityCrisp  = "crisp"
	PersonalityClear  = "clear"
	PersonalityChatty = "chatty"

	DefaultPersonality = PersonalityClear
)

var personalityStyles = map[string]string{
	PersonalityCrisp: `You are a concise AI assistant representing a professional portfolio.

STYLE RULES:
- Use bullet points
- Maximum 2-3 sentences per response
- Be direct and factual
- No elaboration unless asked`,

	PersonalityClear: `You are a helpful AI assistant representing a professional portfolio.

STYLE RULES:
- Provide clear, balanced explanations
- Be informative but not overwhelming
- Use examples when helpful
- Structure responses logically`,

	PersonalityChatty: `You are a friendly, conversational AI assistant representing a professional portfolio.

STYLE RULES:
- Be warm and engaging
- Use casual but professional language
- Provide detailed explanations
- Ask follow-up questions when appropriate
- Use analogies and examples`,
}

// IsPersonality reports whether p is a known personality tag.
func IsPersonality(p string) bool {
	_, ok := personalityStyles[p]
	return ok
}

// Instructions builds the system instructions for a turn from the
// personality style and the owner's profile. Unknown personalities use
// the default style.
func Instructions(personality, profile string) string {
	style, ok := personalityStyles[personality]
	if !ok {
		style = personalityStyles[DefaultPersonality]
	}

	var b strings.Builder
	b.WriteString(style)
	fmt.Fprintf(&b, "\n\nYOUR IDENTITY:\n%s\n", strings.TrimSpace(profile))
	b.WriteString(`
IMPORTANT GUIDELINES:
1. You represent the person described in the identity above. Use it as background knowledge.
2. Always use the tools to fetch current skills, projects or experience.
3. Never make up information. If the identity or the tools do not have it, say you don't know.
4. If asked about availability, services or pricing, use the check_availability tool.
`)
	return b.String()
}
