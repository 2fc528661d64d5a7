package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/mockinterview/internal/domain"
)

func TestAggregateEmotions_HappyMajority(t *testing.T) {
	p := AggregateEmotions([]domain.EmotionLabel{domain.EmotionHappy, domain.EmotionHappy, domain.EmotionNeutral})

	assert.Equal(t, domain.EmotionHappy, p.DominantEmotion)
	assert.Equal(t, map[domain.EmotionLabel]int{domain.EmotionHappy: 67, domain.EmotionNeutral: 33}, p.Breakdown)
	assert.Equal(t, 5, p.ConfidenceScore)
	assert.Equal(t, 100, p.ConfidencePercent)
	assert.Equal(t, 3, p.FramesClassified)
}

func TestAggregateEmotions_Empty(t *testing.T) {
	p := AggregateEmotions(nil)

	assert.Equal(t, domain.EmotionNeutral, p.DominantEmotion)
	assert.Len(t, p.Breakdown, len(domain.EmotionLabels))
	for _, v := range p.Breakdown {
		assert.Equal(t, 0, v)
	}
	assert.Equal(t, 4, p.ConfidenceScore)
	assert.Equal(t, 80, p.ConfidencePercent)
}

func TestAggregateEmotions_TieUsesEnumerationOrder(t *testing.T) {
	p := AggregateEmotions([]domain.EmotionLabel{domain.EmotionSurprise, domain.EmotionSad, domain.EmotionSad, domain.EmotionSurprise})
	assert.Equal(t, domain.EmotionSad, p.DominantEmotion)
	assert.Equal(t, 1, p.ConfidenceScore)
}

func TestAggregateEmotions_BreakdownSumsNearHundred(t *testing.T) {
	sequences := [][]domain.EmotionLabel{
		{domain.EmotionHappy},
		{domain.EmotionHappy, domain.EmotionSad, domain.EmotionFear},
		{domain.EmotionAngry, domain.EmotionDisgust, domain.EmotionFear, domain.EmotionSurprise, domain.EmotionNeutral, domain.EmotionSad},
		{domain.EmotionHappy, domain.EmotionHappy, domain.EmotionNeutral, domain.EmotionNeutral, domain.EmotionNeutral, domain.EmotionSad, domain.EmotionFear},
	}
	for _, seq := range sequences {
		p := AggregateEmotions(seq)
		sum := 0
		for _, v := range p.Breakdown {
			sum += v
		}
		assert.InDelta(t, 100, sum, float64(len(domain.EmotionLabels)))
	}
}

func TestAggregateEmotions_IgnoresUnknownLabels(t *testing.T) {
	p := AggregateEmotions([]domain.EmotionLabel{"bored", domain.EmotionAngry})
	assert.Equal(t, domain.EmotionAngry, p.DominantEmotion)
	assert.Equal(t, 1, p.FramesClassified)
	assert.Equal(t, 40, p.ConfidencePercent)
}

func TestConfidenceForEmotion(t *testing.T) {
	cases := map[domain.EmotionLabel]int{
		domain.EmotionHappy:    5,
		domain.EmotionNeutral:  4,
		domain.EmotionSurprise: 3,
		domain.EmotionAngry:    2,
		domain.EmotionDisgust:  2,
		domain.EmotionSad:      1,
		domain.EmotionFear:     1,
	}
	for label, want := range cases {
		assert.Equal(t, want, ConfidenceForEmotion(label), label)
	}
}
