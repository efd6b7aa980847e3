package recommendation

import "strings"

type Intent string

const (
	IntentPractice Intent = "practice_request"
	IntentStress   Intent = "stress_signal"
)

// Classifier detects intent categories in free-text player messages. The
// engine only depends on this interface, so the keyword version below can be
// swapped for an embedding-based classifier without touching the passes.
type Classifier interface {
	Classify(message string) []Intent
}

// Contractual keyword lists: case-insensitive substring containment, no
// stemming.
var PracticeKeywords = []string{
	"practice", "technique", "drill", "how do i", "how can i", "work on",
}

var StressKeywords = []string{
	"nervous", "pressure", "anxious", "worried", "stress", "scared", "tense",
}

type KeywordClassifier struct{}

func (KeywordClassifier) Classify(message string) []Intent {
	lower := strings.ToLower(message)

	intents := []Intent{}
	if containsAny(lower, PracticeKeywords) {
		intents = append(intents, IntentPractice)
	}
	if containsAny(lower, StressKeywords) {
		intents = append(intents, IntentStress)
	}
	return intents
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
