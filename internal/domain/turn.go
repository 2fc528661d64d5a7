package domain

import (
	"encoding/json"
	"time"
)

// Frame is one sampled camera image. Frames are ephemeral: they live only
// until classification and are never persisted.
type Frame struct {
	Index       int       `json:"index"`
	CapturedAt  time.Time `json:"captured_at"`
	ContentType string    `json:"content_type,omitempty"`
	Data        []byte    `json:"-"`
}

// CapturedOutput is the modality-tagged result of one capture.
// Speech captures carry Transcript; video captures carry Frames.
type CapturedOutput struct {
	Modality   Modality `json:"modality"`
	Transcript string   `json:"transcript,omitempty"`
	Frames     []Frame  `json:"-"`
}

// TextOutput builds a speech-modality output.
func TextOutput(transcript string) CapturedOutput {
	return CapturedOutput{Modality: ModalitySpeech, Transcript: transcript}
}

// FrameSetOutput builds a video-modality output.
func FrameSetOutput(frames []Frame) CapturedOutput {
	return CapturedOutput{Modality: ModalityVideo, Frames: frames}
}

// Empty reports whether nothing was captured.
func (o CapturedOutput) Empty() bool {
	if o.Modality == ModalityVideo {
		return len(o.Frames) == 0
	}
	return len(o.Transcript) == 0
}

// MarshalJSON emits the frame count in place of frame data.
func (o CapturedOutput) MarshalJSON() ([]byte, error) {
	type wire struct {
		Modality   Modality `json:"modality"`
		Transcript string   `json:"transcript"`
		FrameCount int      `json:"frame_count"`
	}
	return json.Marshal(wire{Modality: o.Modality, Transcript: o.Transcript, FrameCount: len(o.Frames)})
}

// Turn is one completed question/answer exchange. Immutable once created.
type Turn struct {
	Index       int            `json:"index"`
	Question    string         `json:"question"`
	Answer      CapturedOutput `json:"answer"`
	CompletedAt time.Time      `json:"completed_at"`
}

// QAPair is the evaluator's view of a turn.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QAPairs projects turns onto question/transcript pairs.
func QAPairs(turns []Turn) []QAPair {
	pairs := make([]QAPair, 0, len(turns))
	for _, t := range turns {
		pairs = append(pairs, QAPair{Question: t.Question, Answer: t.Answer.Transcript})
	}
	return pairs
}
