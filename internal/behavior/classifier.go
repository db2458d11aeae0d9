// Package behavior turns the player's response-time history into a
// deterministic routing decision for the downstream expert policy.
// Determinism is a hard requirement: identical input sequences must
// produce identical routing across runs and machines, so every
// threshold is a fixed constant and rule order never changes.
package behavior

// Fixed thresholds. Changing any of these changes expert routing for
// every session, so treat them as wire constants.
const (
	hesitationThresholdMs    = 10000.0
	rapidClickThresholdMs    = 500.0
	depletedAvgThresholdMs   = 15000.0
	hesitationCountTripAt    = 2
	rapidClickCountTripAt    = 3
	distractedHistoryMin     = 3
	exploringFloorMs         = 3000.0
	exploringCeilingMs       = 8000.0
	rollingMomentumHistoryAt = 5
)

// CognitiveState is the classifier's detected player state.
type CognitiveState string

const (
	StateFocused    CognitiveState = "focused"
	StateExploring  CognitiveState = "exploring"
	StateDistracted CognitiveState = "distracted"
	StateStuck      CognitiveState = "stuck"
	StateFrustrated CognitiveState = "frustrated"
	StateDepleted   CognitiveState = "depleted"
	StateCompleting CognitiveState = "completing"
)

// Expert names the response-handling policy the consuming application
// should adopt next.
type Expert string

const (
	ExpertDirect     Expert = "Direct"
	ExpertSocratic   Expert = "Socratic"
	ExpertRefocuser  Expert = "Refocuser"
	ExpertScaffolder Expert = "Scaffolder"
	ExpertValidator  Expert = "Validator"
	ExpertRestorer   Expert = "Restorer"
	ExpertCelebrator Expert = "Celebrator"
)

// BurnoutLevel is a coarse traffic-light severity.
type BurnoutLevel string

const (
	BurnoutGreen  BurnoutLevel = "GREEN"
	BurnoutYellow BurnoutLevel = "YELLOW"
	BurnoutOrange BurnoutLevel = "ORANGE"
	BurnoutRed    BurnoutLevel = "RED"
)

// MomentumPhase describes the session's trajectory.
type MomentumPhase string

const (
	MomentumBuilding  MomentumPhase = "building"
	MomentumRolling   MomentumPhase = "rolling"
	MomentumPeak      MomentumPhase = "peak"
	MomentumDeclining MomentumPhase = "declining"
	MomentumCrashed   MomentumPhase = "crashed"
)

// Assessment is the routing tuple produced for a single answer.
type Assessment struct {
	State    CognitiveState
	Expert   Expert
	Burnout  BurnoutLevel
	Momentum MomentumPhase

	// LongHesitation reports whether the answer that produced this
	// assessment individually exceeded the hesitation threshold.
	LongHesitation bool
}

// Signals is the cumulative per-session aggregate. Counters are
// monotonic within a session; the whole struct resets only on an
// explicit session stop. The values double as wire data: they are
// written into the outgoing answer document on every submission.
type Signals struct {
	HesitationCount        int
	RapidClickCount        int
	LastResponseTimeMs     float64
	AverageResponseTimeMs  float64
	TotalResponsesRecorded int

	DetectedState     CognitiveState
	RecommendedExpert Expert
	BurnoutLevel      BurnoutLevel
	MomentumPhase     MomentumPhase
}

// Classifier accumulates response times across a session and routes
// each new answer to an expert via fixed-priority rules.
type Classifier struct {
	responseTimes []float64
	signals       Signals
}

// NewClassifier returns a classifier with empty history.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Signals returns a copy of the current cumulative aggregate.
func (c *Classifier) Signals() Signals {
	return c.signals
}

// History returns the number of responses recorded so far.
func (c *Classifier) History() int {
	return len(c.responseTimes)
}

// Reset clears all history and counters. Called on session stop only.
func (c *Classifier) Reset() {
	c.responseTimes = nil
	c.signals = Signals{}
}

// Record appends a response time, updates the cumulative signals and
// returns the routing assessment. questionIndex/questionTotal describe
// the question being answered; the rules read post-increment counter
// values, so evaluation order here must match the fixed priority list
// exactly.
func (c *Classifier) Record(responseTimeMs float64, questionIndex, questionTotal int) Assessment {
	c.responseTimes = append(c.responseTimes, responseTimeMs)

	var total float64
	for _, t := range c.responseTimes {
		total += t
	}
	avg := total / float64(len(c.responseTimes))

	longHesitation := responseTimeMs > hesitationThresholdMs
	if longHesitation {
		c.signals.HesitationCount++
	}
	if responseTimeMs < rapidClickThresholdMs && len(c.responseTimes) > 1 {
		c.signals.RapidClickCount++
	}

	c.signals.LastResponseTimeMs = responseTimeMs
	c.signals.AverageResponseTimeMs = avg
	c.signals.TotalResponsesRecorded = len(c.responseTimes)

	a := Assessment{LongHesitation: longHesitation}
	switch {
	case c.signals.RapidClickCount > rapidClickCountTripAt:
		a.State, a.Expert, a.Burnout, a.Momentum = StateFrustrated, ExpertValidator, BurnoutRed, MomentumCrashed

	case longHesitation || c.signals.HesitationCount > hesitationCountTripAt:
		a.State, a.Expert, a.Burnout, a.Momentum = StateStuck, ExpertScaffolder, BurnoutOrange, MomentumDeclining

	case avg > depletedAvgThresholdMs:
		a.State, a.Expert, a.Burnout, a.Momentum = StateDepleted, ExpertRestorer, BurnoutOrange, MomentumCrashed

	case len(c.responseTimes) > distractedHistoryMin && responseTimeMs > avg*2.0:
		a.State, a.Expert, a.Burnout, a.Momentum = StateDistracted, ExpertRefocuser, BurnoutYellow, MomentumDeclining

	case questionIndex == questionTotal-1:
		a.State, a.Expert, a.Burnout, a.Momentum = StateCompleting, ExpertCelebrator, BurnoutGreen, MomentumPeak

	case len(c.responseTimes) >= 2 && responseTimeMs > exploringFloorMs && responseTimeMs < exploringCeilingMs:
		a.State, a.Expert, a.Burnout, a.Momentum = StateExploring, ExpertSocratic, BurnoutGreen, MomentumBuilding

	default:
		a.State, a.Expert, a.Burnout = StateFocused, ExpertDirect, BurnoutGreen
		if len(c.responseTimes) > rollingMomentumHistoryAt {
			a.Momentum = MomentumRolling
		} else {
			a.Momentum = MomentumBuilding
		}
	}

	c.signals.DetectedState = a.State
	c.signals.RecommendedExpert = a.Expert
	c.signals.BurnoutLevel = a.Burnout
	c.signals.MomentumPhase = a.Momentum

	return a
}
