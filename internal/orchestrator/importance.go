package orchestrator

import "strings"

// eventKeywords mark a turn as episodically significant. Each hit raises the
// event score.
var eventKeywords = []string{
	"important",
	"remember",
	"milestone",
	"decision",
	"decided",
	"breakthrough",
	"deadline",
	"achieved",
	"completed",
	"learned",
}

// InteractionImportance scores a turn for promotion to the durable store.
// The score starts at a neutral 0.5 and rises with length, attached context
// and question content, capped at 1.0.
func InteractionImportance(input, output string, context map[string]interface{}) float64 {
	score := 0.5

	total := len(input) + len(output)
	if total > 200 {
		score += 0.1
	}
	if total > 500 {
		score += 0.1
	}
	if len(context) > 0 {
		score += 0.2
	}
	if strings.Contains(input, "?") {
		score += 0.1
	}
	return clamp01(score)
}

// EventImportance scores a turn as an episodic event. The boolean reports
// whether the turn qualifies at all: a turn with no keyword hit and no
// significance marker in its context is never stored, regardless of score.
func EventImportance(input, output string, context map[string]interface{}) (float64, bool) {
	score := 0.7
	significant := false

	text := strings.ToLower(input + " " + output)
	for _, kw := range eventKeywords {
		if strings.Contains(text, kw) {
			score += 0.1
			significant = true
		}
	}

	if flag, ok := context["significant"].(bool); ok && flag {
		score += 0.2
		significant = true
	}
	if priority, ok := context["priority"].(string); ok && strings.EqualFold(priority, "high") {
		score += 0.1
	}
	return clamp01(score), significant
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
