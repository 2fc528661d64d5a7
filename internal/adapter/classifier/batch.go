package classifier

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// Result is the outcome of classifying a batch of frames.
type Result struct {
	// Labels keeps frame order; failed frames are absent.
	Labels  []domain.EmotionLabel
	Dropped int
}

// ClassifyFrames classifies frames with at most limit requests in flight.
// Frames that fail are dropped, never retried here and never fatal.
func ClassifyFrames(ctx context.Context, c Classifier, frames []domain.Frame, limit int, log logrus.FieldLogger) Result {
	if limit < 1 {
		limit = 1
	}
	labels := make([]domain.EmotionLabel, len(frames))
	ok := make([]bool, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range frames {
		g.Go(func() error {
			label, err := c.Classify(gctx, frames[i])
			if err != nil {
				log.WithError(err).WithField("frame", frames[i].Index).Debug("dropping unclassified frame")
				return nil
			}
			labels[i] = label
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Labels: make([]domain.EmotionLabel, 0, len(frames))}
	for i, l := range labels {
		if ok[i] {
			res.Labels = append(res.Labels, l)
		} else {
			res.Dropped++
		}
	}
	return res
}
