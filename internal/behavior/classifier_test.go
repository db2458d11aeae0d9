package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(c *Classifier, times []float64, index, total int) Assessment {
	var a Assessment
	for _, rt := range times {
		a = c.Record(rt, index, total)
	}
	return a
}

func TestRapidClickRuleHasTopPriority(t *testing.T) {
	t.Parallel()

	// Five rapid clicks: the first never counts (history must exceed 1),
	// so the count reaches 4 on the fifth and trips the threshold. Rule
	// one must win regardless of what the last response would classify
	// as in isolation.
	c := NewClassifier()
	a := record(c, []float64{400, 400, 400, 400, 400}, 2, 8)

	require.Equal(t, 4, c.Signals().RapidClickCount)
	assert.Equal(t, StateFrustrated, a.State)
	assert.Equal(t, ExpertValidator, a.Expert)
	assert.Equal(t, BurnoutRed, a.Burnout)
	assert.Equal(t, MomentumCrashed, a.Momentum)
}

func TestRapidClickBeatsLastQuestionRule(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	record(c, []float64{400, 400, 400, 400}, 2, 8)
	// Final question, but the accumulated frustration still routes first.
	a := c.Record(400, 7, 8)

	assert.Equal(t, StateFrustrated, a.State)
}

func TestCompletingBeatsExploring(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	// Five unremarkable answers, then 4000ms on the final question.
	// 4000ms sits inside the exploring window, but the last-question
	// rule has higher priority.
	record(c, []float64{2000, 2100, 1900, 2000, 2050}, 3, 8)
	a := c.Record(4000, 7, 8)

	assert.Equal(t, StateCompleting, a.State)
	assert.Equal(t, ExpertCelebrator, a.Expert)
	assert.Equal(t, BurnoutGreen, a.Burnout)
	assert.Equal(t, MomentumPeak, a.Momentum)
}

func TestLongHesitationRoutesToScaffolder(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	a := c.Record(12000, 0, 8)

	assert.Equal(t, StateStuck, a.State)
	assert.Equal(t, ExpertScaffolder, a.Expert)
	assert.Equal(t, BurnoutOrange, a.Burnout)
	assert.Equal(t, MomentumDeclining, a.Momentum)
	assert.True(t, a.LongHesitation)
	assert.Equal(t, 1, c.Signals().HesitationCount)
}

func TestHesitationCountTripsWithoutCurrentHesitation(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	// Three hesitations push the count past the trip threshold; a later
	// fast-but-not-rapid answer still routes to Scaffolder.
	record(c, []float64{11000, 11000, 11000}, 1, 8)
	a := c.Record(2000, 3, 8)

	assert.Equal(t, StateStuck, a.State)
	assert.False(t, a.LongHesitation)
}

func TestDepletedAverage(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	// Two long pauses leave the hesitation count at exactly 2, which does
	// not trip rule two. A third sub-threshold response then exposes the
	// depleted average: (40000+40000+9000)/3 is well over 15s.
	record(c, []float64{40000, 40000}, 1, 8)
	a := c.Record(9000, 2, 8)

	assert.Equal(t, StateDepleted, a.State)
	assert.Equal(t, ExpertRestorer, a.Expert)
	assert.Equal(t, BurnoutOrange, a.Burnout)
	assert.Equal(t, MomentumCrashed, a.Momentum)
}

func TestDistractedSpike(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	record(c, []float64{1000, 1000, 1000, 1000}, 1, 8)
	// 9000ms is > 2x the running average (~2600 incl. itself) and under
	// the hesitation threshold.
	a := c.Record(9000, 4, 8)

	assert.Equal(t, StateDistracted, a.State)
	assert.Equal(t, ExpertRefocuser, a.Expert)
	assert.Equal(t, BurnoutYellow, a.Burnout)
}

func TestExploringWindow(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	c.Record(2000, 0, 8)
	a := c.Record(5000, 1, 8)

	assert.Equal(t, StateExploring, a.State)
	assert.Equal(t, ExpertSocratic, a.Expert)
	assert.Equal(t, MomentumBuilding, a.Momentum)
}

func TestDefaultFocusedMomentum(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	a := c.Record(1500, 0, 8)
	assert.Equal(t, StateFocused, a.State)
	assert.Equal(t, MomentumBuilding, a.Momentum)

	// After more than five responses the default momentum becomes rolling.
	record(c, []float64{1500, 1500, 1500, 1500}, 1, 8)
	a = c.Record(1500, 5, 8)
	assert.Equal(t, StateFocused, a.State)
	assert.Equal(t, MomentumRolling, a.Momentum)
}

func TestSignalsAreMonotonicAndResetOnlyExplicitly(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	record(c, []float64{12000, 400, 12000}, 0, 8)

	s := c.Signals()
	assert.Equal(t, 2, s.HesitationCount)
	assert.Equal(t, 1, s.RapidClickCount)
	assert.Equal(t, 3, s.TotalResponsesRecorded)
	assert.InDelta(t, (12000+400+12000)/3.0, s.AverageResponseTimeMs, 0.01)

	c.Reset()
	s = c.Signals()
	assert.Zero(t, s.HesitationCount)
	assert.Zero(t, s.RapidClickCount)
	assert.Zero(t, s.TotalResponsesRecorded)
	assert.Equal(t, 0, c.History())
}

func TestDeterminism(t *testing.T) {
	t.Parallel()

	seq := []float64{1200, 400, 11000, 5000, 300, 9000, 2000, 4000}
	run := func() []Assessment {
		c := NewClassifier()
		out := make([]Assessment, 0, len(seq))
		for i, rt := range seq {
			out = append(out, c.Record(rt, i, len(seq)))
		}
		return out
	}
	assert.Equal(t, run(), run())
}
