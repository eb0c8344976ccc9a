package rag

import "strings"

// AnswerSuggestions is the number of follow-up questions attached to an
// answer.
const AnswerSuggestions = 5

var starterQuestions = []string{
	"How do I set up my TikTok Shop?",
	"What are the requirements for TikTok Shop?",
	"How can I increase my shop sales?",
	"What marketing strategies work best?",
	"How do I handle customer service?",
	"What are the best product categories?",
	"How do I optimize my product listings?",
	"What are the payment processing options?",
	"How do I manage inventory?",
	"What are the shipping requirements?",
}

var (
	setupFollowUps = []string{
		"What documents do I need for verification?",
		"How long does the approval process take?",
		"What are the minimum requirements?",
	}
	performanceFollowUps = []string{
		"How do I increase my conversion rate?",
		"What metrics indicate success?",
		"How do I analyze my competitors?",
	}
)

// Suggestions returns suggested questions. When userContext mentions
// "setup" or "performance" the matching follow-ups come first, ahead of the
// starter questions. Setup wins when both are mentioned.
func Suggestions(userContext string) []string {
	lower := strings.ToLower(userContext)

	var followUps []string
	switch {
	case strings.Contains(lower, "setup"):
		followUps = setupFollowUps
	case strings.Contains(lower, "performance"):
		followUps = performanceFollowUps
	}

	out := make([]string, 0, len(followUps)+len(starterQuestions))
	out = append(out, followUps...)
	return append(out, starterQuestions...)
}

// TopSuggestions returns at most n suggestions for userContext.
func TopSuggestions(userContext string, n int) []string {
	s := Suggestions(userContext)
	if n > 0 && len(s) > n {
		s = s[:n]
	}
	return s
}
