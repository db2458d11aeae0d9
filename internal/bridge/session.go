// Package bridge owns the conversation state machine between this
// process and the external producer. A Session is single-threaded by
// construction: all progress happens inside Tick, driven by the host
// loop, so no field is lock-protected.
package bridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/translators-dev/bridge-cli/internal/behavior"
	"github.com/translators-dev/bridge-cli/internal/profile"
	"github.com/translators-dev/bridge-cli/internal/protocol"
	"github.com/translators-dev/bridge-cli/internal/watch"
)

// State is the session's position in the conversation lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateWaitingForBridge State = "waiting_for_bridge"
	StateConnected        State = "connected"
	StateQuestionActive   State = "question_active"
	StateAnswerPending    State = "answer_pending"
	StateTransitioning    State = "transitioning"
	StateComplete         State = "complete"

	// StateError is advisory. No internal path transitions into it;
	// failures emit error events and the next tick retries. A host that
	// decides a session is beyond recovery sets it via SetErrorState.
	StateError State = "error"
)

// ErrorKind classifies reported (never thrown) session failures.
type ErrorKind string

const (
	ErrFileRead     ErrorKind = "FileReadFailure"
	ErrFileWrite    ErrorKind = "FileWriteFailure"
	ErrJSONParse    ErrorKind = "JsonParseFailure"
	ErrProfileParse ErrorKind = "ProfileParseFailure"

	// Reserved kinds: the session never raises these itself. Hosts that
	// validate answer/question pairing or enforce producer timeouts
	// report through them.
	ErrQuestionIDMismatch ErrorKind = "QuestionIdMismatch"
	ErrAnswerTimeout      ErrorKind = "AnswerTimeout"
)

// ActiveQuestion is the question currently awaiting an answer, enriched
// with the depth label derived from its index.
type ActiveQuestion struct {
	protocol.Question
	DepthLabel string
}

// Events is the host-facing callback surface. Nil callbacks are
// skipped.
type Events struct {
	Ready              func(totalQuestions int)
	QuestionReady      func(q ActiveQuestion)
	TransitionReady    func(direction, nextScene string, progress float64)
	ProfileComplete    func(p profile.Profile, path string)
	ProfileFileUpdated func(path string)
	Error              func(kind ErrorKind, message string)
}

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	Dir          string
	PollInterval time.Duration
	Debounce     time.Duration
	WriteRetries int
	RetryDelay   time.Duration

	// Identification stamped into acknowledgments.
	EngineVersion string
	Project       string
}

// Session drives the file-based conversation with the producer.
type Session struct {
	logger    *zap.Logger
	dir       string
	sessionID string

	format     *protocol.Format
	detector   *watch.Detector
	classifier *behavior.Classifier
	extractor  *profile.Extractor
	events     Events

	// errLog throttles error-event log lines; the events themselves are
	// never dropped.
	errLog *rate.Limiter

	engineVersion string
	project       string

	state          State
	active         bool
	totalQuestions int
	question       ActiveQuestion
	hasQuestion    bool
}

var (
	stateFileCandidates   = []string{protocol.StateFileUSDA, protocol.StateFileJSON}
	profileFileCandidates = []string{protocol.ProfileFile, protocol.SubstrateFile}
)

// NewSession builds an inactive session over the bridge directory.
func NewSession(logger *zap.Logger, opts Options, events Events) *Session {
	if opts.EngineVersion == "" {
		opts.EngineVersion = "dev"
	}
	if opts.Project == "" {
		opts.Project = "translators-bridge"
	}

	log := logger.Named("bridge")
	s := &Session{
		logger:        log,
		dir:           opts.Dir,
		sessionID:     uuid.NewString(),
		format:        protocol.NewFormat(log, opts.Dir, opts.WriteRetries, opts.RetryDelay),
		classifier:    behavior.NewClassifier(),
		extractor:     profile.NewExtractor(log),
		events:        events,
		errLog:        rate.NewLimiter(rate.Every(time.Second), 5),
		engineVersion: opts.EngineVersion,
		project:       opts.Project,
		state:         StateIdle,
	}
	s.detector = watch.NewDetector(log, opts.Dir,
		stateFileCandidates, profileFileCandidates,
		opts.PollInterval, opts.Debounce)
	s.detector.OnSettled = s.onSettled
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// SessionID returns the identifier stamped into acknowledgments.
func (s *Session) SessionID() string { return s.sessionID }

// TotalQuestions returns the question count announced by the producer,
// zero before the ready message.
func (s *Session) TotalQuestions() int { return s.totalQuestions }

// ActiveQuestion returns the question awaiting an answer. The boolean
// is false outside QuestionActive/AnswerPending.
func (s *Session) ActiveQuestion() (ActiveQuestion, bool) {
	return s.question, s.hasQuestion
}

// StartSession creates the bridge directory if needed, enters
// WaitingForBridge and immediately processes any state file the
// producer wrote before we started.
func (s *Session) StartSession() error {
	if s.active {
		s.logger.Info("Session already active")
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bridge directory %s: %w", s.dir, err)
	}

	s.active = true
	s.setState(StateWaitingForBridge)
	s.logger.Info("Bridge session started",
		zap.String("dir", s.dir),
		zap.String("session_id", s.sessionID))

	for _, name := range stateFileCandidates {
		if _, err := os.Stat(filepath.Join(s.dir, name)); err == nil {
			s.logger.Info("Found existing state file", zap.String("file", name))
			s.processStateFile()
			break
		}
	}
	return nil
}

// StopSession returns the session to Idle. Idempotent.
func (s *Session) StopSession() {
	if !s.active {
		return
	}
	s.active = false
	s.detector.ClearPending()
	s.classifier.Reset()
	s.format.ResetMode()
	s.hasQuestion = false
	s.setState(StateIdle)
	s.logger.Info("Bridge session stopped")
}

// Tick advances change detection by one host-loop frame. Settled
// channels dispatch synchronously inside this call.
func (s *Session) Tick(delta time.Duration) {
	if !s.active {
		return
	}
	s.detector.Tick(delta)
}

// NotifyFileChanged implements watch.FileChangeSink: an OS-level
// directory watch marks the matching channel pending without waiting
// for the next poll. Debounce still applies.
func (s *Session) NotifyFileChanged(filename string, isProfile bool) {
	if !s.active {
		return
	}
	if isProfile {
		s.detector.NotifyChanged(watch.ChannelProfile)
	} else {
		s.detector.NotifyChanged(watch.ChannelState)
	}
	s.logger.Debug("External change notification", zap.String("file", filename))
}

// ForceProfileReload re-emits the profile-updated event for the
// preferred export path, for hosts that want to re-read on demand.
func (s *Session) ForceProfileReload() {
	s.logger.Info("Forced profile reload requested")
	s.emitProfileUpdated(filepath.Join(s.dir, protocol.ProfileFile))
}

// SetErrorState marks the session as failed. Advisory only: ticking
// continues and a later successful decode moves the state forward.
func (s *Session) SetErrorState() {
	s.setState(StateError)
}

func (s *Session) onSettled(ch watch.Channel) {
	switch ch {
	case watch.ChannelState:
		s.processStateFile()
	case watch.ChannelProfile:
		for _, name := range profileFileCandidates {
			path := filepath.Join(s.dir, name)
			if _, err := os.Stat(path); err == nil {
				s.emitProfileUpdated(path)
				return
			}
		}
	}
}

// processStateFile decodes whatever the producer left and dispatches
// it. Decode failures are reported and swallowed; the next settle
// retries independently.
func (s *Session) processStateFile() {
	msg, err := s.format.DecodeState()
	if err != nil {
		kind := ErrFileRead
		if errors.Is(err, protocol.ErrMalformedJSON) {
			kind = ErrJSONParse
		}
		s.emitError(kind, err.Error())
		return
	}

	switch m := msg.(type) {
	case nil:
		// Nothing dispatchable: no file, an unknown type, or a question
		// whose sync status has not flipped yet.

	case protocol.Ready:
		s.handleReady(m)

	case protocol.Question:
		s.handleQuestion(m)

	case protocol.Transition:
		s.setState(StateTransitioning)
		s.logger.Info("Transition",
			zap.String("direction", m.Direction),
			zap.String("next_scene", m.NextScene),
			zap.Float64("progress", m.Progress))
		if s.events.TransitionReady != nil {
			s.events.TransitionReady(m.Direction, m.NextScene, m.Progress)
		}

	case protocol.Finale:
		s.handleFinale(m)
	}
}

func (s *Session) handleReady(m protocol.Ready) {
	total := m.TotalQuestions
	if total <= 0 {
		total = 8
	}
	s.totalQuestions = total
	s.setState(StateConnected)
	s.logger.Info("Bridge ready", zap.Int("total_questions", total))
	if s.events.Ready != nil {
		s.events.Ready(total)
	}
}

func (s *Session) handleQuestion(m protocol.Question) {
	// The active question is replaced wholesale, never merged.
	s.question = ActiveQuestion{Question: m, DepthLabel: depthLabel(m.Index)}
	s.hasQuestion = true
	s.setState(StateQuestionActive)
	s.logger.Info("Question active",
		zap.Int("index", m.Index),
		zap.Int("total", m.Total),
		zap.String("question_id", m.ID),
		zap.String("depth", s.question.DepthLabel))
	if s.events.QuestionReady != nil {
		s.events.QuestionReady(s.question)
	}
}

func (s *Session) handleFinale(m protocol.Finale) {
	path := m.ExportPath
	if path == "" {
		path = filepath.Join(s.dir, protocol.ProfileFile)
	}

	p, err := s.extractor.Extract(path)
	if err != nil {
		// The session still completes: an unreadable export yields an
		// empty profile, matching the reporting-only failure policy.
		s.emitError(ErrProfileParse, err.Error())
	}

	s.setState(StateComplete)
	s.logger.Info("Session complete",
		zap.String("export_path", path),
		zap.String("message", m.Message))
	if s.events.ProfileComplete != nil {
		s.events.ProfileComplete(p, path)
	}
}

// SubmitAnswer records the player's choice for the active question and
// writes it to the producer. Out-of-range option indices degrade to
// empty label/direction rather than failing; pairing questionID with
// the active question is the caller's responsibility.
func (s *Session) SubmitAnswer(questionID string, optionIndex int, responseTimeMs float64) {
	var label, direction string
	if s.hasQuestion && optionIndex >= 0 && optionIndex < len(s.question.Options) {
		label = s.question.Options[optionIndex].Label
		direction = s.question.Options[optionIndex].Direction
	}

	index, total := 0, s.totalQuestions
	if s.hasQuestion {
		index, total = s.question.Index, s.question.Total
	}
	assessment := s.classifier.Record(responseTimeMs, index, total)

	s.logger.Info("Submitting answer",
		zap.String("question_id", questionID),
		zap.Int("option_index", optionIndex),
		zap.Float64("response_time_ms", responseTimeMs),
		zap.String("detected_state", string(assessment.State)),
		zap.String("recommended_expert", string(assessment.Expert)))

	rec := protocol.AnswerRecord{
		QuestionID:        questionID,
		OptionIndex:       optionIndex,
		ResponseTimeMs:    responseTimeMs,
		SelectedLabel:     label,
		SelectedDirection: direction,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.format.WriteAnswer(rec, s.classifier.Signals(), assessment.LongHesitation); err != nil {
		s.emitError(ErrFileWrite, err.Error())
		return
	}
	s.setState(StateAnswerPending)
}

// Acknowledge writes a readiness acknowledgment. It does not change
// state; hosts typically call it on the ready event.
func (s *Session) Acknowledge() {
	rec := protocol.AckRecord{
		EngineVersion: s.engineVersion,
		Project:       s.project,
		SessionID:     s.sessionID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.format.WriteAck(rec); err != nil {
		s.emitError(ErrFileWrite, err.Error())
	}
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("State transition",
		zap.String("from", string(s.state)),
		zap.String("to", string(next)))
	s.state = next
}

func (s *Session) emitProfileUpdated(path string) {
	s.logger.Info("Profile export updated", zap.String("path", path))
	if s.events.ProfileFileUpdated != nil {
		s.events.ProfileFileUpdated(path)
	}
}

func (s *Session) emitError(kind ErrorKind, message string) {
	if s.errLog.Allow() {
		s.logger.Warn("Bridge error",
			zap.String("kind", string(kind)),
			zap.String("message", message))
	}
	if s.events.Error != nil {
		s.events.Error(kind, message)
	}
}

// depthLabel maps a question index onto the conversation depth tier.
func depthLabel(index int) string {
	switch index / 2 {
	case 0:
		return "SURFACE"
	case 1:
		return "PATTERNS"
	case 2:
		return "FEELINGS"
	default:
		return "CORE"
	}
}
