package domain

import (
	"fmt"
	"strings"
	"time"
)

// ResponseMetrics holds the sub-scores computed for a single turn.
type ResponseMetrics struct {
	Index          int      `json:"index"`
	SpeakingSkills float64  `json:"speaking_skills"`
	Confidence     float64  `json:"confidence"`
	Fluency        float64  `json:"fluency"`
	Correctness    float64  `json:"correctness"`
	Feedback       []string `json:"feedback,omitempty"`
}

// LinguisticMetrics aggregates the per-turn sub-scores (each 0-10) into an
// overall score (0-100) plus improvement feedback.
type LinguisticMetrics struct {
	SpeakingSkills float64           `json:"speaking_skills"`
	Confidence     float64           `json:"confidence"`
	Fluency        float64           `json:"fluency"`
	Correctness    float64           `json:"correctness"`
	OverallScore   int               `json:"overall_score"`
	Feedback       []string          `json:"feedback"`
	Responses      []ResponseMetrics `json:"responses"`
}

// EmotionProfile summarizes the per-frame emotion labels of a session.
// Breakdown values are rounded percentages and may not sum to exactly 100.
type EmotionProfile struct {
	DominantEmotion   EmotionLabel         `json:"dominant_emotion"`
	Counts            map[EmotionLabel]int `json:"counts"`
	Breakdown         map[EmotionLabel]int `json:"breakdown"`
	FramesClassified  int                  `json:"frames_classified"`
	ConfidenceScore   int                  `json:"confidence_score"`
	ConfidencePercent int                  `json:"confidence_percent"`
}

// SessionReport is the final read-only artifact of a completed session.
type SessionReport struct {
	ReportID   string            `json:"report_id"`
	SessionID  string            `json:"session_id"`
	UserID     string            `json:"user_id,omitempty"`
	Role       string            `json:"role"`
	Modality   Modality          `json:"modality"`
	Turns      []Turn            `json:"turns"`
	Linguistic LinguisticMetrics `json:"linguistic"`
	Emotion    *EmotionProfile   `json:"emotion,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Transcript renders the conversation as Q:/A: plain text.
func (r *SessionReport) Transcript() string {
	var b strings.Builder
	for _, t := range r.Turns {
		answer := t.Answer.Transcript
		if t.Answer.Modality == ModalityVideo {
			answer = fmt.Sprintf("[video response, %d frames]", len(t.Answer.Frames))
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", t.Question, answer)
	}
	return b.String()
}
