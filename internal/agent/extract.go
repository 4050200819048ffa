package agent

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"
)

// The model is asked to wrap its plan in <agent_plan> tags; some completions
// use an HTML comment instead, so that is accepted as a fallback. The outbound
// block uses its own marker so a re-fed reply is never mistaken for model
// output.
var (
	planTagRe     = regexp.MustCompile(`(?s)<agent_plan>(.*?)</agent_plan>`)
	planCommentRe = regexp.MustCompile(`(?s)<!--\s*agent_plan\b(.*?)-->`)
	fenceRe       = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
)

const (
	actionsBlockOpen  = "<!--agent_actions"
	actionsBlockClose = "-->"
)

// Extractor locates and parses the structured plan block inside a completion.
// Malformed blocks degrade to a nil plan; the matched span is stripped from
// the reply either way.
type Extractor struct {
	Logger *log.Logger
}

// Extract returns the reply text with the plan block removed, plus the parsed
// raw plan, or nil when no block was found or it did not parse.
func (e Extractor) Extract(text string) (string, *RawPlan) {
	loc := planTagRe.FindStringSubmatchIndex(text)
	if loc == nil {
		loc = planCommentRe.FindStringSubmatchIndex(text)
	}
	if loc == nil {
		return text, nil
	}
	content := text[loc[2]:loc[3]]
	clean := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])

	content = unwrap(content)
	var raw RawPlan
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		if e.Logger != nil {
			e.Logger.Printf("agent plan block did not parse, dropping it: %v", err)
		}
		return clean, nil
	}
	return clean, &raw
}

// unwrap peels markdown fences and a redundant wrapper tag off the captured
// block content.
func unwrap(content string) string {
	if m := fenceRe.FindStringSubmatch(content); m != nil {
		content = m[1]
	}
	content = strings.TrimSpace(content)
	if inner := planTagRe.FindStringSubmatch(content); inner != nil {
		content = strings.TrimSpace(inner[1])
	}
	// A nested opening tag leaves a stray fragment after the non-greedy
	// outer match consumed the first closing tag.
	content = strings.TrimPrefix(content, "<agent_plan>")
	content = strings.TrimSuffix(content, "</agent_plan>")
	return strings.TrimSpace(content)
}

// AppendPlanBlock re-serializes a normalized plan into the reply as a
// comment-delimited block for the dashboard to pick up.
func AppendPlanBlock(content string, plan *Plan) string {
	if plan == nil {
		return content
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	if content != "" {
		b.WriteString("\n\n")
	}
	b.WriteString(actionsBlockOpen)
	b.WriteString("\n")
	b.Write(data)
	b.WriteString("\n")
	b.WriteString(actionsBlockClose)
	return b.String()
}

// ParsePlanBlock reads a normalized plan back out of a reply produced by
// AppendPlanBlock. Used by the dashboard side and by tests.
func ParsePlanBlock(content string) (*Plan, bool) {
	start := strings.LastIndex(content, actionsBlockOpen)
	if start == -1 {
		return nil, false
	}
	rest := content[start+len(actionsBlockOpen):]
	end := strings.Index(rest, actionsBlockClose)
	if end == -1 {
		return nil, false
	}
	var plan Plan
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &plan); err != nil {
		return nil, false
	}
	return &plan, true
}
