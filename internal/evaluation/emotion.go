package evaluation

import (
	"math"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// confidenceByEmotion maps a dominant emotion onto a 1..5 ordinal score.
var confidenceByEmotion = map[domain.EmotionLabel]int{
	domain.EmotionHappy:    5,
	domain.EmotionNeutral:  4,
	domain.EmotionSurprise: 3,
	domain.EmotionAngry:    2,
	domain.EmotionDisgust:  2,
}

// ConfidenceForEmotion returns the 1..5 ordinal score for a label.
func ConfidenceForEmotion(label domain.EmotionLabel) int {
	if s, ok := confidenceByEmotion[label]; ok {
		return s
	}
	return 1
}

// AggregateEmotions summarizes per-frame labels. With no labels the dominant
// emotion is neutral and every breakdown entry is 0. Ties go to the label
// listed first in domain.EmotionLabels.
func AggregateEmotions(labels []domain.EmotionLabel) domain.EmotionProfile {
	counts := make(map[domain.EmotionLabel]int, len(domain.EmotionLabels))
	total := 0
	for _, l := range labels {
		if _, known := knownLabels[l]; !known {
			continue
		}
		counts[l]++
		total++
	}

	profile := domain.EmotionProfile{
		DominantEmotion:  domain.EmotionNeutral,
		Counts:           counts,
		Breakdown:        make(map[domain.EmotionLabel]int, len(domain.EmotionLabels)),
		FramesClassified: total,
	}

	if total == 0 {
		for _, l := range domain.EmotionLabels {
			profile.Breakdown[l] = 0
		}
	} else {
		best := 0
		for _, l := range domain.EmotionLabels {
			c := counts[l]
			if c > best {
				best = c
				profile.DominantEmotion = l
			}
			if c > 0 {
				profile.Breakdown[l] = int(math.Round(float64(c) * 100 / float64(total)))
			}
		}
	}

	profile.ConfidenceScore = ConfidenceForEmotion(profile.DominantEmotion)
	profile.ConfidencePercent = profile.ConfidenceScore * 20
	return profile
}

var knownLabels = func() map[domain.EmotionLabel]int {
	m := make(map[domain.EmotionLabel]int, len(domain.EmotionLabels))
	for i, l := range domain.EmotionLabels {
		m[l] = i
	}
	return m
}()
