// Package orchestrator runs one interview session: it binds a capture channel
// to each question turn, advances the question sequencer, and once the plan
// is exhausted evaluates the history and hands the report to persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xiaot623/mockinterview/internal/adapter/classifier"
	"github.com/xiaot623/mockinterview/internal/capture"
	"github.com/xiaot623/mockinterview/internal/domain"
	"github.com/xiaot623/mockinterview/internal/evaluation"
	"github.com/xiaot623/mockinterview/internal/observability"
	"github.com/xiaot623/mockinterview/internal/sequencer"
	"github.com/xiaot623/mockinterview/policy"
)

// Config describes one session.
type Config struct {
	SessionID             string
	UserID                string
	Role                  string
	Modality              domain.Modality
	MaxGenerationAttempts int
	ClassifyConcurrency   int
	// StopTimeout bounds how long a capture stop waits for the device to
	// flush. Zero waits for as long as the caller's context allows.
	StopTimeout time.Duration
}

// Deps are the collaborators of a session.
type Deps struct {
	Sequencer  *sequencer.Sequencer
	NewChannel ChannelFactory
	Classifier classifier.Classifier
	Persister  Persister
	History    HistoryLog
	Events     EventSink
	Policy     Policy
	Fallback   FallbackFunc
	Metrics    *observability.Metrics
	Log        logrus.FieldLogger
	// OnStateChange is called after every lifecycle transition.
	OnStateChange func(state domain.SessionState)
	Now           func() time.Time
}

// SubmitResult is the outcome of recording an answer.
type SubmitResult struct {
	Turn     domain.Turn
	Appended bool
	// Fallback is true when the next slot was filled with a canned question.
	Fallback bool
	// Report is set once the last answer completed the session.
	Report *domain.SessionReport
}

// Orchestrator is the state machine of one session. Operations are
// serialized; Snapshot may be called at any time.
type Orchestrator struct {
	cfg  Config
	deps Deps
	seq  *sequencer.Sequencer
	ch   capture.Channel
	log  logrus.FieldLogger

	opMu sync.Mutex

	mu           sync.Mutex
	state        domain.SessionState
	report       *domain.SessionReport
	submitted    bool
	saveAttempts int
	lastErr      string
	closed       bool
	lastActivity time.Time
}

// New creates an orchestrator in SETUP.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Sequencer == nil {
		return nil, errors.New("sequencer is required")
	}
	if deps.NewChannel == nil {
		return nil, errors.New("channel factory is required")
	}
	if deps.Persister == nil {
		return nil, errors.New("persister is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("fallback policy is required")
	}
	if cfg.Modality == domain.ModalityVideo && deps.Classifier == nil {
		return nil, errors.New("classifier is required for video sessions")
	}
	if deps.History == nil {
		deps.History = nopHistory{}
	}
	if deps.Events == nil {
		deps.Events = nopEvents{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = "sess_" + uuid.New().String()[:8]
	}

	o := &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		seq:   deps.Sequencer,
		log:   observability.SessionLogger(deps.Log, cfg.SessionID, string(cfg.Modality)),
		state: domain.SessionStateSetup,
	}
	o.lastActivity = deps.Now()
	o.ch = deps.NewChannel(capture.Hooks{
		OnFlush:   o.onFlush,
		OnRestart: o.onRestart,
		OnFailure: o.onFailure,
		OnFrame:   func(int) { o.deps.Metrics.FrameSampled() },
	})
	if o.ch.Modality() != cfg.Modality {
		return nil, fmt.Errorf("channel modality %s does not match session modality %s", o.ch.Modality(), cfg.Modality)
	}
	return o, nil
}

// SessionID returns the session ID.
func (o *Orchestrator) SessionID() string { return o.cfg.SessionID }

// Setup acquires the capture device. Failure is terminal for the session.
func (o *Orchestrator) Setup(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if err := o.enter(domain.SessionStateSetup); err != nil {
		return err
	}

	if err := o.ch.Open(ctx); err != nil {
		o.log.WithError(err).Warn("device setup failed")
		o.fail(ctx, err)
		o.deps.Metrics.CaptureFailed(string(o.cfg.Modality))
		return err
	}

	o.transition(ctx, domain.SessionStateInProgress)
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeSessionStarted, nil)
	o.questionReady(ctx, false)
	return nil
}

// CurrentQuestion returns the question being answered.
func (o *Orchestrator) CurrentQuestion() (int, string) {
	return o.seq.Current()
}

// StartCapture opens the capture channel for the current question.
func (o *Orchestrator) StartCapture(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if err := o.enter(domain.SessionStateInProgress); err != nil {
		return err
	}
	if st := o.seq.State(); st != domain.SequencerAwaitingAnswer {
		return fmt.Errorf("cannot capture while sequencer is %s: %w", st, domain.ErrInvalidState)
	}

	index := o.seq.Index()
	if err := o.ch.Start(ctx, index); err != nil {
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			o.captureFailed(ctx, index, err)
		}
		return err
	}
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeCaptureStarted, domain.CapturePayload{
		Index:    index,
		Modality: o.cfg.Modality,
	})
	return nil
}

// StopCapture settles the active capture and submits its output as the
// answer to the current question. A device failure discards the capture;
// the caller may start it again.
func (o *Orchestrator) StopCapture(ctx context.Context) (SubmitResult, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.stopCaptureLocked(ctx, "user")
}

func (o *Orchestrator) stopCaptureLocked(ctx context.Context, reason string) (SubmitResult, error) {
	if err := o.enter(domain.SessionStateInProgress); err != nil {
		return SubmitResult{}, err
	}

	stopCtx := ctx
	if o.cfg.StopTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, o.cfg.StopTimeout)
		defer cancel()
	}

	index := o.seq.Index()
	out, err := o.ch.Stop(stopCtx)
	if err != nil {
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			o.captureFailed(ctx, index, err)
		}
		return SubmitResult{}, err
	}

	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeCaptureStopped, domain.CapturePayload{
		Index:      index,
		Modality:   out.Modality,
		FrameCount: len(out.Frames),
		Chars:      len(out.Transcript),
		Reason:     reason,
	})
	return o.submitLocked(ctx, out)
}

// SubmitAnswer records output as the answer to the current question without
// going through the capture channel.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, out domain.CapturedOutput) (SubmitResult, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if err := o.enter(domain.SessionStateInProgress); err != nil {
		return SubmitResult{}, err
	}
	if o.ch.Active() {
		return SubmitResult{}, domain.ErrCaptureActive
	}
	if out.Modality == "" {
		out.Modality = o.cfg.Modality
	}
	if out.Modality != o.cfg.Modality {
		return SubmitResult{}, fmt.Errorf("answer modality %s does not match session modality %s: %w", out.Modality, o.cfg.Modality, domain.ErrInvalidState)
	}
	if st := o.seq.State(); st != domain.SequencerAwaitingAnswer {
		return SubmitResult{}, fmt.Errorf("cannot submit while sequencer is %s: %w", st, domain.ErrInvalidState)
	}
	return o.submitLocked(ctx, out)
}

// RetryAnswer retries question generation for the answer that was already
// recorded when the generator failed. The history is not appended again.
func (o *Orchestrator) RetryAnswer(ctx context.Context) (SubmitResult, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if err := o.enter(domain.SessionStateInProgress); err != nil {
		return SubmitResult{}, err
	}
	if st := o.seq.State(); st != domain.SequencerAdvancing {
		return SubmitResult{}, fmt.Errorf("nothing to retry while sequencer is %s: %w", st, domain.ErrInvalidState)
	}
	return o.submitLocked(ctx, domain.CapturedOutput{})
}

func (o *Orchestrator) submitLocked(ctx context.Context, out domain.CapturedOutput) (SubmitResult, error) {
	res, err := o.seq.Submit(ctx, out)
	result := SubmitResult{Turn: res.Turn, Appended: res.Appended}

	if res.Appended {
		o.recordTurn(ctx, res.Turn)
	}

	var genErr *domain.QuestionGenerationError
	switch {
	case errors.As(err, &genErr):
		fallback, ferr := o.handleGenerationFailure(ctx, genErr)
		if ferr != nil {
			return result, ferr
		}
		result.Fallback = fallback
	case err != nil:
		return result, err
	}

	o.setErr("")
	if res.Complete {
		report, err := o.finalizeLocked(ctx)
		result.Report = report
		return result, err
	}
	o.questionReady(ctx, result.Fallback)
	return result, nil
}

func (o *Orchestrator) recordTurn(ctx context.Context, turn domain.Turn) {
	if err := o.deps.History.AppendTurn(ctx, o.cfg.SessionID, turn); err != nil {
		o.log.WithError(err).WithField("question_index", turn.Index).Error("failed to write turn log")
	}
	o.deps.Metrics.TurnRecorded(string(turn.Answer.Modality))
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeTurnRecorded, domain.TurnRecordedPayload{
		Index:      turn.Index,
		Question:   turn.Question,
		Empty:      turn.Answer.Empty(),
		FrameCount: len(turn.Answer.Frames),
	})
}

// handleGenerationFailure asks the policy what to do. It returns true when
// the slot was filled with a fallback question, or the error to surface.
func (o *Orchestrator) handleGenerationFailure(ctx context.Context, genErr *domain.QuestionGenerationError) (bool, error) {
	input := policy.Input{
		SessionID:       o.cfg.SessionID,
		Role:            o.seq.Role(),
		Modality:        string(o.cfg.Modality),
		QuestionIndex:   genErr.Index,
		PlanLength:      o.seq.Len(),
		Attempts:        genErr.Attempts,
		MaxAttempts:     o.cfg.MaxGenerationAttempts,
		NoMoreQuestions: genErr.NoMoreQuestions(),
	}
	decision, err := o.deps.Policy.Evaluate(ctx, input)
	if err != nil {
		o.log.WithError(err).Error("question policy failed, retrying by default")
		decision = policy.DecisionRetry
	}

	log := o.log.WithFields(logrus.Fields{
		"question_index": genErr.Index,
		"attempts":       genErr.Attempts,
		"decision":       decision,
	})
	log.WithError(genErr.Err).Warn("question generation failed")
	o.deps.Metrics.GenerationFailed(decision)
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeQuestionGenerationFailed, domain.GenerationFailedPayload{
		Index:           genErr.Index,
		Attempts:        genErr.Attempts,
		NoMoreQuestions: input.NoMoreQuestions,
		Decision:        decision,
		Error:           genErr.Err.Error(),
	})

	if decision != policy.DecisionFallback {
		o.setErr(genErr.Error())
		return false, genErr
	}

	question := o.deps.Fallback(o.cfg.Modality, genErr.Index)
	if err := o.seq.Fill(question); err != nil {
		return false, fmt.Errorf("failed to fill fallback question: %w", err)
	}
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeQuestionFallback, domain.QuestionReadyPayload{
		Index:    genErr.Index,
		Question: question,
		Fallback: true,
	})
	return true, nil
}

// Finalize returns the session report, building it if the sequence is
// complete, and saves it if it has not been saved yet.
func (o *Orchestrator) Finalize(ctx context.Context) (*domain.SessionReport, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	report, state := o.report, o.state
	o.mu.Unlock()

	if report != nil {
		if state == domain.SessionStateFinalizing {
			return report, o.saveLocked(ctx)
		}
		return report, nil
	}
	if state != domain.SessionStateInProgress || o.seq.State() != domain.SequencerComplete {
		return nil, fmt.Errorf("cannot finalize session in state %s: %w", state, domain.ErrInvalidState)
	}
	return o.finalizeLocked(ctx)
}

// SaveReport retries only the persistence step of a finished session.
func (o *Orchestrator) SaveReport(ctx context.Context) (*domain.SessionReport, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	report := o.report
	o.mu.Unlock()
	if report == nil {
		return nil, fmt.Errorf("no report to save: %w", domain.ErrInvalidState)
	}
	return report, o.saveLocked(ctx)
}

func (o *Orchestrator) finalizeLocked(ctx context.Context) (*domain.SessionReport, error) {
	o.transition(ctx, domain.SessionStateFinalizing)

	history := o.seq.History()
	report := &domain.SessionReport{
		ReportID:  "rep_" + uuid.New().String()[:8],
		SessionID: o.cfg.SessionID,
		UserID:    o.cfg.UserID,
		Role:      o.seq.Role(),
		Modality:  o.cfg.Modality,
		CreatedAt: o.deps.Now(),
	}

	start := time.Now()
	report.Linguistic = evaluation.EvaluateTranscript(domain.QAPairs(history))
	o.deps.Metrics.ObserveStage("transcript", time.Since(start))

	if o.cfg.Modality == domain.ModalityVideo {
		// Video answers carry no transcript; speech coaching would be noise.
		dropFeedback(&report.Linguistic)

		var frames []domain.Frame
		for _, t := range history {
			frames = append(frames, t.Answer.Frames...)
		}

		start = time.Now()
		res := classifier.ClassifyFrames(ctx, o.deps.Classifier, frames, o.cfg.ClassifyConcurrency, o.log)
		o.deps.Metrics.ObserveStage("classify", time.Since(start))
		o.deps.Metrics.FramesDropped(res.Dropped)
		if res.Dropped > 0 {
			o.log.WithFields(logrus.Fields{"frames": len(frames), "dropped": res.Dropped}).Warn("some frames could not be classified")
		}

		profile := evaluation.AggregateEmotions(res.Labels)
		report.Emotion = &profile
	}

	report.Turns = discardFrameData(history)

	o.mu.Lock()
	o.report = report
	o.mu.Unlock()

	payload := domain.SessionCompletePayload{
		ReportID:     report.ReportID,
		OverallScore: report.Linguistic.OverallScore,
	}
	if report.Emotion != nil {
		payload.DominantEmotion = report.Emotion.DominantEmotion
	}
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeSessionComplete, payload)
	o.log.WithField("overall_score", report.Linguistic.OverallScore).Info("session evaluated")

	return report, o.saveLocked(ctx)
}

func dropFeedback(m *domain.LinguisticMetrics) {
	m.Feedback = []string{}
	for i := range m.Responses {
		m.Responses[i].Feedback = nil
	}
}

// saveLocked hands the report to the persister unless it was already
// accepted.
func (o *Orchestrator) saveLocked(ctx context.Context) error {
	o.mu.Lock()
	report, submitted := o.report, o.submitted
	o.saveAttempts++
	attempt := o.saveAttempts
	o.mu.Unlock()
	if submitted {
		return nil
	}

	if _, err := o.deps.Persister.SaveSession(ctx, report); err != nil {
		perr := &domain.PersistenceError{SessionID: o.cfg.SessionID, Err: err}
		o.log.WithError(err).WithField("attempt", attempt).Error("failed to save session report")
		o.deps.Metrics.PersistenceFailed()
		o.setErr(perr.Error())
		o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypePersistenceFailed, domain.PersistencePayload{
			ReportID: report.ReportID,
			Attempt:  attempt,
			Error:    err.Error(),
		})
		return perr
	}

	o.mu.Lock()
	o.submitted = true
	o.mu.Unlock()
	o.setErr("")
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeReportSaved, domain.PersistencePayload{
		ReportID: report.ReportID,
		Attempt:  attempt,
	})
	o.transition(ctx, domain.SessionStateComplete)
	return nil
}

// Report returns the session report once it has been built.
func (o *Orchestrator) Report() (*domain.SessionReport, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.report, o.report != nil
}

// State returns the lifecycle state.
func (o *Orchestrator) State() domain.SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns the recorded turns.
func (o *Orchestrator) History() []domain.Turn {
	return o.seq.History()
}

// LastActivity returns when the session last changed.
func (o *Orchestrator) LastActivity() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActivity
}

// Snapshot returns the externally visible state of the session.
func (o *Orchestrator) Snapshot() domain.Snapshot {
	index, question := o.seq.Current()
	seqState := o.seq.State()

	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.Snapshot{
		SessionID:      o.cfg.SessionID,
		Role:           o.seq.Role(),
		Modality:       o.cfg.Modality,
		State:          o.state,
		SequencerState: seqState,
		QuestionIndex:  index,
		Question:       question,
		PlanLength:     o.seq.Len(),
		TurnsRecorded:  len(o.seq.History()),
		Capturing:      o.ch.Active(),
		PendingAnswer:  seqState == domain.SequencerAdvancing,
		ReportReady:    o.report != nil,
		Submitted:      o.submitted,
		LastError:      o.lastErr,
	}
}

// Close tears the session down: timers are cancelled and the device is
// released. A session that had not finished is marked FAILED.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	state := o.state
	o.mu.Unlock()

	err := o.ch.Close()
	if err != nil {
		o.log.WithError(err).Warn("failed to release capture device")
	}
	if state == domain.SessionStateSetup || state == domain.SessionStateInProgress {
		o.transition(ctx, domain.SessionStateFailed)
	}
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeSessionClosed, nil)
	return err
}

func (o *Orchestrator) onFlush(index int) {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	ctx := context.Background()

	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeCaptureFlushed, domain.CapturePayload{
		Index:    index,
		Modality: o.cfg.Modality,
		Reason:   "window_elapsed",
	})
	// A manual stop may already have collected the capture and ended the
	// session.
	if o.seq.Index() != index || o.State() != domain.SessionStateInProgress {
		return
	}
	if _, err := o.stopCaptureLocked(ctx, "window_elapsed"); err != nil && !errors.Is(err, domain.ErrCaptureInactive) && !errors.Is(err, domain.ErrSessionClosed) {
		o.log.WithError(err).WithField("question_index", index).Warn("failed to submit flushed capture")
	}
}

func (o *Orchestrator) onRestart(index int) {
	o.deps.Metrics.CaptureRestarted()
	o.deps.Events.Record(context.Background(), o.cfg.SessionID, domain.EventTypeCaptureRestarted, domain.CapturePayload{
		Index:    index,
		Modality: o.cfg.Modality,
	})
}

func (o *Orchestrator) onFailure(index int, err error) {
	o.deps.Metrics.CaptureFailed(string(o.cfg.Modality))
	o.setErr(err.Error())
	o.deps.Events.Record(context.Background(), o.cfg.SessionID, domain.EventTypeCaptureFailed, domain.CapturePayload{
		Index:    index,
		Modality: o.cfg.Modality,
		Error:    err.Error(),
	})
}

func (o *Orchestrator) captureFailed(ctx context.Context, index int, err error) {
	o.log.WithError(err).WithField("question_index", index).Warn("capture failed")
	o.deps.Metrics.CaptureFailed(string(o.cfg.Modality))
	o.setErr(err.Error())
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeCaptureFailed, domain.CapturePayload{
		Index:    index,
		Modality: o.cfg.Modality,
		Error:    err.Error(),
	})
}

func (o *Orchestrator) questionReady(ctx context.Context, fallback bool) {
	index, question := o.seq.Current()
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeQuestionReady, domain.QuestionReadyPayload{
		Index:    index,
		Question: question,
		Fallback: fallback,
	})
}

// enter checks that the session is open and in want, and marks activity.
func (o *Orchestrator) enter(want domain.SessionState) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return domain.ErrSessionClosed
	}
	if o.state != want {
		return fmt.Errorf("session is %s, want %s: %w", o.state, want, domain.ErrInvalidState)
	}
	o.lastActivity = o.deps.Now()
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, state domain.SessionState) {
	o.mu.Lock()
	o.state = state
	o.lastActivity = o.deps.Now()
	o.mu.Unlock()

	o.log.WithField("state", state).Debug("session state changed")
	if o.deps.OnStateChange != nil {
		o.deps.OnStateChange(state)
	}
}

func (o *Orchestrator) fail(ctx context.Context, err error) {
	o.setErr(err.Error())
	o.transition(ctx, domain.SessionStateFailed)
	o.deps.Events.Record(ctx, o.cfg.SessionID, domain.EventTypeSessionFailed, map[string]string{"error": err.Error()})
}

func (o *Orchestrator) setErr(msg string) {
	o.mu.Lock()
	o.lastErr = msg
	o.mu.Unlock()
}

// discardFrameData keeps frame metadata in the report but drops the image
// bytes, which are never persisted.
func discardFrameData(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, len(turns))
	for i, t := range turns {
		out[i] = t
		if len(t.Answer.Frames) == 0 {
			continue
		}
		frames := make([]domain.Frame, len(t.Answer.Frames))
		for j, f := range t.Answer.Frames {
			f.Data = nil
			frames[j] = f
		}
		out[i].Answer.Frames = frames
	}
	return out
}
