// Package sequencer drives a fixed-length question plan through its
// answer/advance cycle and records the conversation history.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// VideoAnswerPlaceholder is handed to the generator in place of a transcript
// for video turns.
const VideoAnswerPlaceholder = "Video response provided"

// Generator produces the next question of a session.
type Generator interface {
	NextQuestion(ctx context.Context, lastAnswer, role string, asked []string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, lastAnswer, role string, asked []string) (string, error)

func (f GeneratorFunc) NextQuestion(ctx context.Context, lastAnswer, role string, asked []string) (string, error) {
	return f(ctx, lastAnswer, role, asked)
}

// Outcome describes the effect of a successful Submit.
type Outcome struct {
	// Appended is true when this call added a turn to the history. It is
	// false for a retry after a generation failure.
	Appended bool
	Turn     domain.Turn
	// Complete is true when this call moved the sequencer to Complete.
	Complete bool
}

// Sequencer is the question state machine of one session. It is safe for
// concurrent use; concurrent Submit calls are rejected, not queued.
type Sequencer struct {
	mu       sync.Mutex
	role     string
	plan     []string
	index    int
	state    domain.SequencerState
	history  []domain.Turn
	attempts int
	inflight bool
	gen      Generator
	now      func() time.Time
}

// New creates a sequencer in AWAITING_ANSWER(0) with the seed question
// preloaded into slot 0.
func New(role string, planLength int, seed string, gen Generator) (*Sequencer, error) {
	if planLength < 1 {
		return nil, fmt.Errorf("plan length must be positive, got %d", planLength)
	}
	if strings.TrimSpace(seed) == "" {
		return nil, errors.New("seed question is required")
	}
	if gen == nil {
		return nil, errors.New("question generator is required")
	}
	plan := make([]string, planLength)
	plan[0] = seed
	return &Sequencer{
		role:    role,
		plan:    plan,
		state:   domain.SequencerAwaitingAnswer,
		history: make([]domain.Turn, 0, planLength),
		gen:     gen,
		now:     time.Now,
	}, nil
}

// Current returns the index and text of the question being answered. While
// advancing it returns the slot whose answer was just recorded.
func (s *Sequencer) Current() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SequencerComplete {
		return s.index, ""
	}
	return s.index, s.plan[s.index]
}

// State returns the current state.
func (s *Sequencer) State() domain.SequencerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Index returns the current slot index.
func (s *Sequencer) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Role returns the role the session interviews for.
func (s *Sequencer) Role() string { return s.role }

// Len returns the plan length.
func (s *Sequencer) Len() int {
	return len(s.plan)
}

// Attempts returns how many generator calls failed for the current slot.
func (s *Sequencer) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Plan returns a copy of the plan; unfilled slots are empty.
func (s *Sequencer) Plan() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.plan...)
}

// History returns a copy of the recorded turns.
func (s *Sequencer) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Turn(nil), s.history...)
}

// Submit records the answer to the current question and advances.
//
// In AWAITING_ANSWER(i) the turn is appended before anything else. On the
// last slot the sequencer becomes Complete. Otherwise the generator is
// called; on failure the sequencer stays ADVANCING(i) and a
// *domain.QuestionGenerationError is returned. Calling Submit again while
// ADVANCING retries the generator without appending a second turn; the
// output argument is ignored in that case.
func (s *Sequencer) Submit(ctx context.Context, output domain.CapturedOutput) (Outcome, error) {
	s.mu.Lock()
	if s.inflight {
		s.mu.Unlock()
		return Outcome{}, fmt.Errorf("submit already in progress: %w", domain.ErrInvalidState)
	}

	var outcome Outcome
	switch s.state {
	case domain.SequencerComplete:
		s.mu.Unlock()
		return Outcome{}, domain.ErrSequenceComplete
	case domain.SequencerAwaitingAnswer:
		turn := domain.Turn{
			Index:       s.index,
			Question:    s.plan[s.index],
			Answer:      output,
			CompletedAt: s.now(),
		}
		s.history = append(s.history, turn)
		outcome.Appended = true
		outcome.Turn = turn
		if s.index == len(s.plan)-1 {
			s.state = domain.SequencerComplete
			s.mu.Unlock()
			outcome.Complete = true
			return outcome, nil
		}
		s.state = domain.SequencerAdvancing
		s.attempts = 0
	case domain.SequencerAdvancing:
		outcome.Turn = s.history[len(s.history)-1]
	}

	last := s.history[len(s.history)-1]
	lastAnswer := last.Answer.Transcript
	if last.Answer.Modality == domain.ModalityVideo {
		lastAnswer = VideoAnswerPlaceholder
	}
	asked := s.askedLocked()
	index := s.index
	s.inflight = true
	s.mu.Unlock()

	question, err := s.gen.NextQuestion(ctx, lastAnswer, s.role, asked)
	if err == nil && strings.TrimSpace(question) == "" {
		err = errors.New("generator returned an empty question")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false
	if err != nil {
		s.attempts++
		return outcome, &domain.QuestionGenerationError{Index: index + 1, Attempts: s.attempts, Err: err}
	}
	s.fillLocked(strings.TrimSpace(question))
	return outcome, nil
}

// Fill stores a substitute question into the pending slot and moves to
// AWAITING_ANSWER. It is valid only while ADVANCING.
func (s *Sequencer) Fill(question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SequencerAdvancing || s.inflight {
		return fmt.Errorf("cannot fill question in state %s: %w", s.state, domain.ErrInvalidState)
	}
	if strings.TrimSpace(question) == "" {
		return errors.New("fallback question is empty")
	}
	s.fillLocked(question)
	return nil
}

func (s *Sequencer) fillLocked(question string) {
	s.plan[s.index+1] = question
	s.index++
	s.attempts = 0
	s.state = domain.SequencerAwaitingAnswer
}

func (s *Sequencer) askedLocked() []string {
	return append([]string(nil), s.plan[:s.index+1]...)
}
