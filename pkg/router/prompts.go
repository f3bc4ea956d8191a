package router

import (
	"fmt"
	"strings"
	"time"
)

// EffectiveSystemPrompt is the configured template followed by the memory
// facts, if any.
func EffectiveSystemPrompt(cfg AppConfig) string {
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	memory := memorySection(cfg.Memory)
	switch {
	case memory == "":
		return prompt
	case prompt == "":
		return memory
	default:
		return prompt + "\n\n" + memory
	}
}

func memorySection(facts []string) string {
	var b strings.Builder
	for _, f := range facts {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("Things you remember about the user:\n")
		}
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n")
}

func dateLine(now time.Time) string {
	return fmt.Sprintf("Today is %s, %s. The current year is %d.",
		now.Format("Monday"), now.Format("January 2, 2006"), now.Year())
}

const searchInstructions = `You are a research assistant with access to Google Search.

Rules:
- Search the web for anything that may have changed after your training data, and prefer recent sources.
- Base your answer on the search results and cite them inline by site name, e.g. (Reuters).
- Do not write a list of links or a "Sources" section yourself; sources are attached automatically.
- Answer in the language of the user's last message.
- Use Markdown: short paragraphs, bullet lists for enumerations and tables for comparisons.
- If the results disagree or are inconclusive, say so.`

// SearchSystemPrompt is used for grounded Gemini calls.
func SearchSystemPrompt(now time.Time, cfg AppConfig) string {
	prompt := dateLine(now) + "\n\n" + searchInstructions
	if memory := memorySection(cfg.Memory); memory != "" {
		prompt += "\n\n" + memory
	}
	return prompt
}

const knowledgeInstructions = `Web search is not available for this request. Answer from your training knowledge.
- Clearly flag any information that may be outdated, and mention when your knowledge likely ends.
- Do not invent sources or links.
- Answer in the language of the user's last message.`

// KnowledgeSystemPrompt is used when search mode answers without web access.
func KnowledgeSystemPrompt(now time.Time, cfg AppConfig) string {
	prompt := dateLine(now) + "\n\n" + knowledgeInstructions
	if memory := memorySection(cfg.Memory); memory != "" {
		prompt += "\n\n" + memory
	}
	return prompt
}
