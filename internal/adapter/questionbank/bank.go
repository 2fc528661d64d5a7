// Package questionbank serves interview questions from a YAML file and holds
// the canned questions used when no generated question is available.
package questionbank

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// FallbackQuestion fills a slot when no unique question remains or the
// generator keeps failing.
const FallbackQuestion = "What makes you the best candidate for this position?"

// videoQuestions are the canned questions for the first follow-up slots of a
// video session.
var videoQuestions = []string{
	"What are your strengths and weaknesses?",
	"Where do you see yourself in 5 years?",
}

// Difficulty levels of a bank question.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// difficultyWeights skews picks towards easier questions, 3:2:1.
var difficultyWeights = []string{
	DifficultyEasy, DifficultyEasy, DifficultyEasy,
	DifficultyMedium, DifficultyMedium,
	DifficultyHard,
}

// Question is one entry of the bank file.
type Question struct {
	Text       string `yaml:"text"`
	Domain     string `yaml:"domain"`
	Difficulty string `yaml:"difficulty"`
}

type bankFile struct {
	Questions []Question `yaml:"questions"`
}

// Bank picks unasked questions for a role.
type Bank struct {
	questions []Question

	mu  sync.Mutex
	rng *rand.Rand
}

// Load reads a bank from a YAML file.
func Load(path string, seed uint64) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank: %w", err)
	}
	return Parse(data, seed)
}

// Parse builds a bank from YAML content.
func Parse(data []byte, seed uint64) (*Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	for i, q := range f.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("question %d has no text", i)
		}
		switch q.Difficulty {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
		case "":
			f.Questions[i].Difficulty = DifficultyEasy
		default:
			return nil, fmt.Errorf("question %d has unknown difficulty %q", i, q.Difficulty)
		}
	}
	return New(f.Questions, seed), nil
}

// New creates a bank over questions. The seed makes picks reproducible.
func New(questions []Question, seed uint64) *Bank {
	return &Bank{
		questions: questions,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Len returns the number of questions in the bank.
func (b *Bank) Len() int { return len(b.questions) }

// NextQuestion picks a random unasked question for role. A difficulty is
// drawn first; if it has no candidates the remaining difficulties are tried
// before giving up with domain.ErrNoMoreQuestions.
func (b *Bank) NextQuestion(_ context.Context, _ string, role string, asked []string) (string, error) {
	seen := make(map[string]struct{}, len(asked))
	for _, q := range asked {
		seen[normalize(q)] = struct{}{}
	}

	byDifficulty := make(map[string][]string)
	for _, q := range b.questions {
		if !strings.EqualFold(q.Domain, role) {
			continue
		}
		if _, ok := seen[normalize(q.Text)]; ok {
			continue
		}
		byDifficulty[q.Difficulty] = append(byDifficulty[q.Difficulty], q.Text)
	}
	if len(byDifficulty) == 0 {
		return "", domain.ErrNoMoreQuestions
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	first := difficultyWeights[b.rng.IntN(len(difficultyWeights))]
	for _, d := range append([]string{first}, DifficultyEasy, DifficultyMedium, DifficultyHard) {
		if candidates := byDifficulty[d]; len(candidates) > 0 {
			return candidates[b.rng.IntN(len(candidates))], nil
		}
	}
	return "", domain.ErrNoMoreQuestions
}

// Fallback returns the canned question for slot index of a session.
// Video sessions use fixed questions for slots 1 and 2.
func Fallback(modality domain.Modality, index int) string {
	if modality == domain.ModalityVideo && index >= 1 && index <= len(videoQuestions) {
		return videoQuestions[index-1]
	}
	return FallbackQuestion
}

func normalize(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

type generator interface {
	NextQuestion(ctx context.Context, lastAnswer, role string, asked []string) (string, error)
}

// VideoScript serves the canned video questions for slots 1 and 2 and asks
// Next for every later slot.
type VideoScript struct {
	Next generator
}

func (v VideoScript) NextQuestion(ctx context.Context, lastAnswer, role string, asked []string) (string, error) {
	if slot := len(asked); slot >= 1 && slot <= len(videoQuestions) {
		return videoQuestions[slot-1], nil
	}
	return v.Next.NextQuestion(ctx, lastAnswer, role, asked)
}
