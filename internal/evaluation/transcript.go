// Package evaluation scores interview answers. Everything here is a pure
// function of its input: identical histories always produce identical
// metrics, and degenerate input yields a valid result instead of an error.
package evaluation

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// Neutral default for correctness when nothing can be measured.
const neutralCorrectness = 5.0

// Feedback sentences, one per sub-metric scoring below feedbackThreshold.
const (
	FeedbackSpeaking    = "Work on expanding vocabulary and using more varied sentence structures."
	FeedbackConfidence  = "Reduce filler words to improve perceived confidence."
	FeedbackFluency     = "Practice creating more concise and coherent responses."
	FeedbackCorrectness = "Ensure responses include key details and demonstrate a clear understanding of the question."

	feedbackThreshold = 7.0
)

var (
	punctuationRe = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s]`)
	sentenceRe    = regexp.MustCompile(`[.!?]+`)
	wordRe        = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+`)

	stopWords = map[string]struct{}{
		"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
		"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	}

	fillerWords = []string{"um", "uh", "like", "you know", "kind of", "uhh"}
	fillerRes   = compileFillers(fillerWords)
)

func compileFillers(words []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		res = append(res, regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return res
}

// EvaluateTranscript scores every turn and aggregates the results. An empty
// history yields zeroed metrics.
func EvaluateTranscript(pairs []domain.QAPair) domain.LinguisticMetrics {
	metrics := domain.LinguisticMetrics{
		Feedback:  []string{},
		Responses: make([]domain.ResponseMetrics, 0, len(pairs)),
	}
	if len(pairs) == 0 {
		return metrics
	}

	var speaking, confidence, fluency, correctness float64
	for i, p := range pairs {
		r := ScoreResponse(p.Question, p.Answer)
		r.Index = i
		metrics.Responses = append(metrics.Responses, r)
		metrics.Feedback = append(metrics.Feedback, r.Feedback...)

		speaking += r.SpeakingSkills
		confidence += r.Confidence
		fluency += r.Fluency
		correctness += r.Correctness
	}

	n := float64(len(pairs))
	metrics.SpeakingSkills = speaking / n
	metrics.Confidence = confidence / n
	metrics.Fluency = fluency / n
	metrics.Correctness = correctness / n
	metrics.OverallScore = OverallScore(metrics.SpeakingSkills, metrics.Confidence, metrics.Fluency, metrics.Correctness)
	return metrics
}

// ScoreResponse computes the four sub-scores and feedback for one answer.
func ScoreResponse(question, answer string) domain.ResponseMetrics {
	r := domain.ResponseMetrics{
		SpeakingSkills: SpeakingSkillScore(answer),
		Confidence:     ConfidenceScore(answer),
		Fluency:        FluencyScore(answer),
		Correctness:    CorrectnessScore(question, answer),
	}
	if r.SpeakingSkills < feedbackThreshold {
		r.Feedback = append(r.Feedback, FeedbackSpeaking)
	}
	if r.Confidence < feedbackThreshold {
		r.Feedback = append(r.Feedback, FeedbackConfidence)
	}
	if r.Fluency < feedbackThreshold {
		r.Feedback = append(r.Feedback, FeedbackFluency)
	}
	if r.Correctness < feedbackThreshold {
		r.Feedback = append(r.Feedback, FeedbackCorrectness)
	}
	return r
}

// OverallScore combines the four averaged sub-metrics into 0..100.
func OverallScore(speaking, confidence, fluency, correctness float64) int {
	mean := (speaking + confidence + fluency + correctness) / 4
	score := int(math.Round(mean * 10))
	return min(100, max(0, score))
}

// CorrectnessScore measures keyword coverage of the question in the answer,
// with a small bonus for answer length.
func CorrectnessScore(question, answer string) float64 {
	if strings.TrimSpace(answer) == "" {
		return neutralCorrectness
	}
	keywords := Keywords(question)
	if len(keywords) == 0 {
		return neutralCorrectness
	}

	lower := strings.ToLower(answer)
	found := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			found++
		}
	}
	coverage := float64(found) / float64(len(keywords))
	lengthFactor := math.Min(1, float64(wordCount(answer))/30)
	return math.Min(10, (coverage*8+lengthFactor*2)*10)
}

// Keywords extracts the content words of a question.
func Keywords(question string) []string {
	cleaned := punctuationRe.ReplaceAllString(strings.ToLower(question), "")
	var out []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// ConfidenceScore penalizes the ratio of filler words to total words.
func ConfidenceScore(answer string) float64 {
	words := wordCount(answer)
	if words == 0 {
		return 10
	}
	lower := strings.ToLower(answer)
	fillers := 0
	for _, re := range fillerRes {
		fillers += len(re.FindAllStringIndex(lower, -1))
	}
	ratio := float64(fillers) / float64(words)
	return math.Max(0, 10-ratio*100)
}

// FluencyScore is the average sentence length in words, capped at 10.
func FluencyScore(answer string) float64 {
	sentences := Sentences(answer)
	if len(sentences) == 0 {
		return 0
	}
	total := 0
	for _, s := range sentences {
		total += wordCount(s)
	}
	return math.Min(10, float64(total)/float64(len(sentences)))
}

// SpeakingSkillScore rewards vocabulary variety and sentence count.
func SpeakingSkillScore(answer string) float64 {
	unique := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(strings.ToLower(answer), -1) {
		unique[w] = struct{}{}
	}
	complexity := math.Min(5, float64(len(unique))/50+float64(len(Sentences(answer)))/10)
	return math.Min(10, complexity*2)
}

// Sentences splits text on terminal punctuation, dropping blank pieces.
func Sentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
