// Package protocol implements the dual wire format of the bridge: a
// structured-text (USDA) conversation-state document as the primary
// encoding, with a JSON document as the fallback. Incoming messages are
// decoded into a closed sum type so dispatch happens once, at the
// decode boundary, instead of string comparisons scattered through the
// state machine.
package protocol

// Well-known filenames inside the bridge directory.
const (
	StateFileUSDA = "bridge_state.usda"
	StateFileJSON = "state.json"
	AnswerFile    = "answer.json"

	ProfileFile   = "cognitive_profile.usda"
	SubstrateFile = "cognitive_substrate.usda"
)

// AnswerSchema identifies outgoing JSON envelopes.
const AnswerSchema = "translators-answer-v1"

// Message is one decoded protocol message from the producer. The
// concrete types are Ready, Question, Transition and Finale.
type Message interface {
	isMessage()
}

// Ready is the producer's session-open announcement.
type Ready struct {
	TotalQuestions int
}

// Option is one selectable answer for a question.
type Option struct {
	Label     string
	Direction string
}

// Question is a prompt awaiting player input.
type Question struct {
	Index   int
	Total   int
	ID      string
	Text    string
	Scene   string
	Options []Option
}

// Transition carries scene-change animation hints between questions.
type Transition struct {
	Direction string
	NextScene string
	Progress  float64
}

// Finale announces session completion and references the exported
// profile document.
type Finale struct {
	ExportPath string
	Message    string
}

func (Ready) isMessage()      {}
func (Question) isMessage()   {}
func (Transition) isMessage() {}
func (Finale) isMessage()     {}

// AnswerRecord is the outgoing answer payload written back to the
// producer.
type AnswerRecord struct {
	QuestionID        string
	OptionIndex       int
	ResponseTimeMs    float64
	SelectedLabel     string
	SelectedDirection string
	Timestamp         string
}

// AckRecord is the outgoing readiness acknowledgment.
type AckRecord struct {
	EngineVersion string
	Project       string
	SessionID     string
	Timestamp     string
}
