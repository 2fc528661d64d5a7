package domain

// QuestionReadyPayload is recorded when a question becomes answerable.
type QuestionReadyPayload struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	Fallback bool   `json:"fallback,omitempty"`
}

// CapturePayload is recorded for capture lifecycle events.
type CapturePayload struct {
	Index      int      `json:"index"`
	Modality   Modality `json:"modality"`
	FrameCount int      `json:"frame_count,omitempty"`
	Chars      int      `json:"chars,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// TurnRecordedPayload is recorded when a turn is appended to history.
type TurnRecordedPayload struct {
	Index      int    `json:"index"`
	Question   string `json:"question"`
	Empty      bool   `json:"empty"`
	FrameCount int    `json:"frame_count,omitempty"`
}

// GenerationFailedPayload is recorded when the generator fails.
type GenerationFailedPayload struct {
	Index           int    `json:"index"`
	Attempts        int    `json:"attempts"`
	NoMoreQuestions bool   `json:"no_more_questions"`
	Decision        string `json:"decision"`
	Error           string `json:"error"`
}

// SessionCompletePayload is recorded once the report is built.
type SessionCompletePayload struct {
	ReportID        string       `json:"report_id"`
	OverallScore    int          `json:"overall_score"`
	DominantEmotion EmotionLabel `json:"dominant_emotion,omitempty"`
}

// PersistencePayload is recorded for save attempts.
type PersistencePayload struct {
	ReportID string `json:"report_id"`
	Attempt  int    `json:"attempt"`
	Error    string `json:"error,omitempty"`
}
