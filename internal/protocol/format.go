package protocol

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/translators-dev/bridge-cli/internal/behavior"
	"github.com/translators-dev/bridge-cli/internal/usda"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedJSON marks an unparseable fallback state document. A
// missing file is not an error; a present-but-broken one is.
var ErrMalformedJSON = errors.New("malformed JSON state document")

// Default write-retry policy. The producer patches the shared files in
// place, so transient lock contention is expected and sub-second.
const (
	DefaultWriteRetries = 3
	DefaultRetryDelay   = 100 * time.Millisecond
)

// Format reads and writes protocol messages in whichever of the two
// physical encodings is available, preferring the structured-text form.
type Format struct {
	logger     *zap.Logger
	dir        string
	retries    int
	retryDelay time.Duration

	// usingUSDA latches once structured-text communication has worked.
	// It is a soft preference hint for writes; every decode still
	// re-probes for the structured-text document first.
	usingUSDA bool
}

// NewFormat builds a codec over the bridge directory. Non-positive
// retry settings fall back to the defaults.
func NewFormat(logger *zap.Logger, dir string, retries int, retryDelay time.Duration) *Format {
	if retries <= 0 {
		retries = DefaultWriteRetries
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Format{
		logger:     logger.Named("protocol"),
		dir:        dir,
		retries:    retries,
		retryDelay: retryDelay,
	}
}

// UsingUSDA reports whether structured-text mode has been latched.
func (f *Format) UsingUSDA() bool { return f.usingUSDA }

// ResetMode clears the latch. Called on session stop.
func (f *Format) ResetMode() { f.usingUSDA = false }

func (f *Format) path(name string) string {
	return filepath.Join(f.dir, name)
}

// DecodeState reads the waiting conversation-state message, trying the
// structured-text document first and the JSON fallback second. A nil
// message with a nil error means nothing is ready to dispatch (no file,
// or a question document whose sync status has not flipped yet).
func (f *Format) DecodeState() (Message, error) {
	if raw, err := os.ReadFile(f.path(StateFileUSDA)); err == nil {
		return f.decodeUSDA(string(raw)), nil
	}

	raw, err := os.ReadFile(f.path(StateFileJSON))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", StateFileJSON, err)
	}
	return f.decodeJSON(raw)
}

// decodeUSDA routes on the document-scope variants. Unknown message
// types and half-written question documents decode to nothing.
func (f *Format) decodeUSDA(doc string) Message {
	syncStatus, _ := usda.ParseVariant(doc, "sync_status")
	messageType, _ := usda.ParseVariant(doc, "message_type")

	f.logger.Debug("Decoding structured-text state",
		zap.String("sync_status", syncStatus),
		zap.String("message_type", messageType))

	switch messageType {
	case "ready":
		f.usingUSDA = true
		total, _ := strconv.Atoi(firstAttr(doc, "Ready", "total_questions"))
		return Ready{TotalQuestions: total}

	case "question":
		if syncStatus != "question_pending" {
			// The producer has not finished writing this question, or it
			// is a stale echo of one already answered.
			return nil
		}
		return f.decodeUSDAQuestion(doc)

	case "transition":
		progress, _ := strconv.ParseFloat(firstAttr(doc, "Transition", "progress"), 64)
		return Transition{
			Direction: firstAttr(doc, "Transition", "direction"),
			NextScene: firstAttr(doc, "Transition", "next_scene"),
			Progress:  progress,
		}

	case "finale":
		return Finale{
			ExportPath: firstAttr(doc, "Finale", "usd_path"),
			Message:    firstAttr(doc, "Finale", "message"),
		}
	}
	return nil
}

func (f *Format) decodeUSDAQuestion(doc string) Question {
	index, _ := strconv.Atoi(firstAttr(doc, "Message", "index"))
	total, _ := strconv.Atoi(firstAttr(doc, "Message", "total"))

	q := Question{
		Index: index,
		Total: total,
		ID:    firstAttr(doc, "Message", "question_id"),
		Text:  firstAttr(doc, "Message", "text"),
		Scene: firstAttr(doc, "Message", "scene"),
	}

	for i := 0; i < 3; i++ {
		prim := fmt.Sprintf("Option_%d", i)
		label := firstAttr(doc, prim, "label")
		if label == "" {
			continue
		}
		q.Options = append(q.Options, Option{
			Label:     label,
			Direction: firstAttr(doc, prim, "direction"),
		})
	}
	return q
}

// firstAttr reads one attribute out of a named block, tolerating both
// the block and the attribute being absent.
func firstAttr(doc, prim, attr string) string {
	v, _ := usda.ParseAttribute(usda.FindBlock(doc, prim), attr)
	return v
}

// decodeJSON routes on the top-level "type" field. Message bodies may
// be nested under a key matching the type name or flattened into the
// top-level object; the nested form wins when both are present.
func (f *Format) decodeJSON(raw []byte) (Message, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	f.usingUSDA = false
	if env.Type == "" {
		f.logger.Debug("JSON state document carries no type field")
		return nil, nil
	}

	body := raw
	if sub := jsoniter.Get(raw, env.Type); sub.ValueType() == jsoniter.ObjectValue {
		body = []byte(sub.ToString())
	}

	switch env.Type {
	case "ready":
		var b struct {
			TotalQuestions int `json:"total_questions"`
		}
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, fmt.Errorf("%w: ready body: %v", ErrMalformedJSON, err)
		}
		return Ready{TotalQuestions: b.TotalQuestions}, nil

	case "question":
		var b struct {
			Index   int    `json:"index"`
			Total   int    `json:"total"`
			ID      string `json:"id"`
			Text    string `json:"text"`
			Scene   string `json:"scene"`
			Options []struct {
				Label     string `json:"label"`
				Direction string `json:"direction"`
			} `json:"options"`
		}
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, fmt.Errorf("%w: question body: %v", ErrMalformedJSON, err)
		}
		q := Question{Index: b.Index, Total: b.Total, ID: b.ID, Text: b.Text, Scene: b.Scene}
		for _, o := range b.Options {
			q.Options = append(q.Options, Option{Label: o.Label, Direction: o.Direction})
		}
		return q, nil

	case "transition":
		var b struct {
			Direction string  `json:"direction"`
			NextScene string  `json:"next_scene"`
			Progress  float64 `json:"progress"`
		}
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, fmt.Errorf("%w: transition body: %v", ErrMalformedJSON, err)
		}
		return Transition{Direction: b.Direction, NextScene: b.NextScene, Progress: b.Progress}, nil

	case "finale":
		var b struct {
			ExportPath string `json:"usd_path"`
			Message    string `json:"message"`
		}
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, fmt.Errorf("%w: finale body: %v", ErrMalformedJSON, err)
		}
		return Finale{ExportPath: b.ExportPath, Message: b.Message}, nil
	}

	// Unknown types are tolerated for forward compatibility.
	f.logger.Debug("Ignoring unknown JSON message type", zap.String("type", env.Type))
	return nil, nil
}

// WriteAnswer records a player answer. The structured-text document is
// patched in place when available (and preferred by the mode latch);
// any failure degrades to the JSON envelope. Behavioral signals ride
// along in both encodings' spirit: they are patched into the USDA
// document and omitted from the minimal JSON fallback, matching the
// producer's expectations for each format.
func (f *Format) WriteAnswer(rec AnswerRecord, sig behavior.Signals, longHesitation bool) error {
	statePath := f.path(StateFileUSDA)

	if f.usingUSDA {
		raw, err := os.ReadFile(statePath)
		if err == nil {
			doc := string(raw)
			doc = usda.UpdateVariant(doc, "sync_status", "answer_received")
			doc = usda.UpdateVariant(doc, "message_type", "answer")

			doc = usda.UpdateAttribute(doc, "Answer", "question_id", rec.QuestionID, true)
			doc = usda.UpdateAttribute(doc, "Answer", "option_index", strconv.Itoa(rec.OptionIndex), false)
			doc = usda.UpdateAttribute(doc, "Answer", "response_time_ms", formatFloat(rec.ResponseTimeMs), false)
			doc = usda.UpdateAttribute(doc, "Answer", "selected_label", rec.SelectedLabel, true)
			doc = usda.UpdateAttribute(doc, "Answer", "selected_direction", rec.SelectedDirection, true)
			doc = usda.UpdateAttribute(doc, "Answer", "timestamp", rec.Timestamp, true)

			doc = patchSignals(doc, sig, longHesitation)

			if err := f.saveWithRetry(statePath, doc); err == nil {
				f.logger.Info("Structured-text answer sent",
					zap.String("question_id", rec.QuestionID),
					zap.Int("option_index", rec.OptionIndex),
					zap.Float64("response_time_ms", rec.ResponseTimeMs))
				return nil
			}
			f.logger.Warn("Structured-text answer write failed, falling back to JSON")
		}
	}

	envelope := map[string]interface{}{
		"$schema":   AnswerSchema,
		"type":      "answer",
		"timestamp": rec.Timestamp,
		"answer": map[string]interface{}{
			"question_id":      rec.QuestionID,
			"option_index":     rec.OptionIndex,
			"response_time_ms": rec.ResponseTimeMs,
		},
	}
	if err := f.writeJSON(AnswerFile, envelope); err != nil {
		return err
	}
	f.logger.Info("JSON answer sent",
		zap.String("question_id", rec.QuestionID),
		zap.Int("option_index", rec.OptionIndex))
	return nil
}

// WriteAck records a readiness acknowledgment and latches structured-
// text mode when the in-place patch succeeds.
func (f *Format) WriteAck(rec AckRecord) error {
	statePath := f.path(StateFileUSDA)

	if raw, err := os.ReadFile(statePath); err == nil {
		doc := string(raw)
		doc = usda.UpdateVariant(doc, "message_type", "ack")
		doc = usda.UpdateAttribute(doc, "Ack", "ready", "true", false)
		doc = usda.UpdateAttribute(doc, "Ack", "engine_version", rec.EngineVersion, true)
		doc = usda.UpdateAttribute(doc, "Ack", "project", rec.Project, true)
		doc = usda.UpdateAttribute(doc, "Ack", "timestamp", rec.Timestamp, true)

		if err := f.saveWithRetry(statePath, doc); err == nil {
			f.logger.Info("Structured-text acknowledgment sent")
			f.usingUSDA = true
			return nil
		}
		f.logger.Warn("Structured-text acknowledgment write failed, falling back to JSON")
	}

	envelope := map[string]interface{}{
		"$schema":   AnswerSchema,
		"type":      "ack",
		"timestamp": rec.Timestamp,
		"ack": map[string]interface{}{
			"ready":          true,
			"engine_version": rec.EngineVersion,
			"project":        rec.Project,
			"session_id":     rec.SessionID,
		},
	}
	if err := f.writeJSON(AnswerFile, envelope); err != nil {
		return err
	}
	f.logger.Info("JSON acknowledgment sent")
	return nil
}

// patchSignals writes the classifier output into the BehavioralSignals
// block. Attributes absent from older document versions are skipped by
// the codec, never errors.
func patchSignals(doc string, sig behavior.Signals, longHesitation bool) string {
	doc = usda.UpdateAttribute(doc, "BehavioralSignals", "last_response_time_ms", formatFloat(sig.LastResponseTimeMs), false)
	doc = usda.UpdateAttribute(doc, "BehavioralSignals", "average_response_time_ms", formatFloat(sig.AverageResponseTimeMs), false)
	doc = usda.UpdateAttribute(doc, "BehavioralSignals", "hesitation_count", strconv.Itoa(sig.HesitationCount), false)
	doc = usda.UpdateAttribute(doc, "BehavioralSignals", "long_hesitation_detected", strconv.FormatBool(longHesitation), false)
	doc = usda.UpdateAttribute(doc, "BehavioralSignals", "rapid_click_count", strconv.Itoa(sig.RapidClickCount), false)
	doc = usda.UpdateAttribute(doc, "BehavioralSignals", "detected_state", string(sig.DetectedState), true)
	doc = usda.UpdateAttribute(doc, "BehavioralSignals", "recommended_expert", string(sig.RecommendedExpert), true)
	doc = usda.UpdateAttribute(doc, "BehavioralSignals", "burnout_level", string(sig.BurnoutLevel), true)
	doc = usda.UpdateAttribute(doc, "BehavioralSignals", "momentum_phase", string(sig.MomentumPhase), true)
	return doc
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// saveWithRetry absorbs transient lock contention from the concurrent
// producer with a bounded retry loop.
func (f *Format) saveWithRetry(path, content string) error {
	var lastErr error
	for attempt := 0; attempt < f.retries; attempt++ {
		if lastErr = os.WriteFile(path, []byte(content), 0o644); lastErr == nil {
			return nil
		}
		if attempt < f.retries-1 {
			f.logger.Warn("Write failed, retrying",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", f.retries),
				zap.Error(lastErr))
			time.Sleep(f.retryDelay)
		}
	}
	return fmt.Errorf("failed to write %s after %d retries: %w", filepath.Base(path), f.retries, lastErr)
}

func (f *Format) writeJSON(name string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return f.saveWithRetry(f.path(name), string(raw))
}
