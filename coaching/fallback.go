package coaching

import (
	"fmt"
	"strings"
)

// Canned coaching content used whenever the model provider is unavailable or
// returns something unusable. Generic but genuinely useful; the player never
// sees a hard failure.

var defaultSuggestions = []string{
	"Take one slow breath before your next shot and settle your grip pressure",
	"Commit to a single target before you start your routine",
	"Finish every practice block with three shots under self-imposed pressure",
}

var defaultTechniques = []string{
	"Box Breathing",
	"Blue Head Reset",
	"Pre-Shot Routine Lock",
}

var defaultNextSteps = []string{
	"Run your pre-shot routine on every range ball this week",
	"Log one practice score after each session",
}

var stressIndicators = []string{
	"nervous", "pressure", "anxious", "worried", "stress", "scared", "tense", "choke",
}

func hasStressIndicator(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range stressIndicators {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func fallbackResponse(message string) *Response {
	urgency := "low"
	indicators := []string{}
	reply := "Let's keep it simple: pick one thing from your game to focus on right now. What would hitting a committed shot look like on your very next swing?"

	if hasStressIndicator(message) {
		urgency = "medium"
		indicators = []string{"stress language in player message"}
		reply = "That tension you're describing is your red head talking. Slow everything down: one long exhale, soften your shoulders, and pick the smallest target you can see. Pressure shrinks when the task shrinks."
	}

	return &Response{
		Message:            reply,
		Suggestions:        defaultSuggestions,
		RedHeadIndicators:  indicators,
		BlueHeadTechniques: defaultTechniques,
		UrgencyLevel:       urgency,
	}
}

var areaNames = []string{"intensity", "decision making", "diversions", "execution"}

func fallbackAnalysis(scores Scores) *Analysis {
	areas := []int{scores.Intensity, scores.DecisionMaking, scores.Diversions, scores.Execution}

	strengths := []string{}
	opportunities := []string{}
	weakest := 0
	for i, v := range areas {
		if v >= 75 {
			strengths = append(strengths, fmt.Sprintf("Strong %s (%d/100)", areaNames[i], v))
		}
		if v < 50 {
			opportunities = append(opportunities, fmt.Sprintf("Build %s (%d/100)", areaNames[i], v))
		}
		if v < areas[weakest] {
			weakest = i
		}
	}
	if len(strengths) == 0 {
		strengths = append(strengths, "Showing up and measuring your game is itself a blue-head habit")
	}
	if len(opportunities) == 0 {
		opportunities = append(opportunities, fmt.Sprintf("Sharpen %s, currently your lowest area", areaNames[weakest]))
	}

	total := scores.Total()
	state := ClassifyOverallState(total)

	insight := fmt.Sprintf("Your total of %d/400 puts you in the %s range; %s is the area holding the most upside.",
		total, strings.ReplaceAll(state, "_", " "), areaNames[weakest])

	return &Analysis{
		OverallState:          state,
		Strengths:             strengths,
		Opportunities:         opportunities,
		RecommendedTechniques: defaultTechniques,
		Insights:              []string{insight},
		NextSteps:             defaultNextSteps,
	}
}
