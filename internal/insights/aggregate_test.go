package insights

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/weights"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWeightedMeanReferenceCases(t *testing.T) {
	cases := []struct {
		name    string
		weights []float64
		values  []float64
		want    float64
		ok      bool
	}{
		{"two-to-one", []float64{2.0, 1.0}, []float64{10, 20}, 40.0 / 3.0, true},
		{"zero-weight-in-denominator", []float64{0.0, 1.0}, []float64{50, 30}, 30, true},
		{"equal-weights", []float64{1, 1, 1}, []float64{5, 10, 15}, 10, true},
		{"three-contributors", []float64{3.0, 1.0, 2.0}, []float64{8, 12, 6}, 8, true},
		{"all-zero-weights", []float64{0, 0}, []float64{50, 30}, 0, false},
	}
	for _, tc := range cases {
		got, ok := WeightedMean(tc.weights, tc.values)
		if ok != tc.ok {
			t.Fatalf("%s: ok want=%v got=%v", tc.name, tc.ok, ok)
		}
		if ok && !almostEqual(got, tc.want) {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func msg(persona uuid.UUID, sentiment float64, themes ...research.ThemeTag) TaggedMessage {
	return TaggedMessage{
		MessageID: uuid.New(),
		PersonaID: persona,
		Themes:    themes,
		Sentiment: sentiment,
	}
}

func tag(theme string, confidence float64) research.ThemeTag {
	return research.ThemeTag{Theme: theme, Confidence: confidence}
}

func TestAggregateThemeScoreIsFrequencyTimesMeanConfidence(t *testing.T) {
	persona := uuid.New()
	snap := weights.NewSnapshot(uuid.New(), 1, nil, nil)

	result, err := Aggregate([]TaggedMessage{
		msg(persona, 0.5, tag("pricing", 0.8)),
		msg(persona, 0.3, tag("pricing", 0.6)),
	}, snap, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	metrics := result.ByPersona[persona]["pricing"]
	if metrics.Frequency != 2 {
		t.Fatalf("frequency: want=2 got=%d", metrics.Frequency)
	}
	// 2 mentions x mean confidence 0.7
	if !almostEqual(metrics.ThemeScore, 1.4) {
		t.Fatalf("theme score: want=1.4 got=%v", metrics.ThemeScore)
	}
	if !almostEqual(metrics.Sentiment, 0.4) {
		t.Fatalf("sentiment: want=0.4 got=%v", metrics.Sentiment)
	}
}

func TestAggregateZeroWeightStaysInDenominator(t *testing.T) {
	muted := uuid.New()
	normal := uuid.New()
	studyID := uuid.New()
	snap := weights.NewSnapshot(studyID, 1, nil, map[uuid.UUID]float64{
		muted:  0.0,
		normal: 1.0,
	})

	// Theme scores: muted 50 (50 mentions would be unwieldy; use confidence to
	// hit the value directly), normal 30.
	mutedMsgs := make([]TaggedMessage, 50)
	for i := range mutedMsgs {
		mutedMsgs[i] = msg(muted, 0, tag("churn", 1.0))
	}
	normalMsgs := make([]TaggedMessage, 30)
	for i := range normalMsgs {
		normalMsgs[i] = msg(normal, 0, tag("churn", 1.0))
	}

	result, err := Aggregate(append(mutedMsgs, normalMsgs...), snap, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(result.Themes) != 1 {
		t.Fatalf("themes: want=1 got=%d", len(result.Themes))
	}
	theme := result.Themes[0]
	if theme.ZeroDenominator {
		t.Fatalf("denominator is 1.0, not zero")
	}
	// (0*50 + 1*30) / (0+1) = 30
	if !almostEqual(theme.ScoreWeighted, 30) {
		t.Fatalf("score_weighted: want=30 got=%v", theme.ScoreWeighted)
	}
	// Unweighted mean over the same contributors: (50+30)/2
	if !almostEqual(theme.ScoreUnweighted, 40) {
		t.Fatalf("score_unweighted: want=40 got=%v", theme.ScoreUnweighted)
	}
}

func TestAggregateZeroDenominatorFlagsThemeAndKeepsRun(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	snap := weights.NewSnapshot(uuid.New(), 1, nil, map[uuid.UUID]float64{
		a: 0.0,
		b: 2.0,
	})

	result, err := Aggregate([]TaggedMessage{
		msg(a, 0.5, tag("dead-theme", 0.9)),
		msg(b, 0.2, tag("live-theme", 0.9)),
	}, snap, Options{})
	if err != nil {
		t.Fatalf("zero denominator must degrade per theme, not fail the run: %v", err)
	}

	var dead, live *ThemeMetrics
	for i := range result.Themes {
		switch result.Themes[i].ThemeID {
		case "dead-theme":
			dead = &result.Themes[i]
		case "live-theme":
			live = &result.Themes[i]
		}
	}
	if dead == nil || live == nil {
		t.Fatalf("missing themes in result: %v", result.Themes)
	}
	if !dead.ZeroDenominator {
		t.Fatalf("dead-theme must carry the zero denominator flag")
	}
	if dead.ScoreUnweighted == 0 {
		t.Fatalf("unweighted metrics must still be computed for flagged themes")
	}
	if live.ZeroDenominator || live.ScoreWeighted == 0 {
		t.Fatalf("live-theme must aggregate normally: %+v", live)
	}
	if len(result.Limitations) != 1 {
		t.Fatalf("limitations: want=1 got=%v", result.Limitations)
	}
}

func TestAggregateRankingTieBreaks(t *testing.T) {
	p1 := uuid.New()
	p2 := uuid.New()
	p3 := uuid.New()
	snap := weights.NewSnapshot(uuid.New(), 1, nil, nil)

	build := func() []TaggedMessage {
		return []TaggedMessage{
			// theme-b: two contributors, each score 1.0 => weighted 1.0
			msg(p1, 0, tag("theme-b", 1.0)),
			msg(p2, 0, tag("theme-b", 1.0)),
			// theme-a: one contributor, score 1.0 => weighted 1.0
			msg(p3, 0, tag("theme-a", 1.0)),
			// theme-c: one contributor, score 1.0 => ties with theme-a on both
			// score and contributors; id ascending breaks it
			msg(p3, 0, tag("theme-c", 1.0)),
			// theme-d: clearly highest
			msg(p1, 0, tag("theme-d", 1.0)),
			msg(p1, 0, tag("theme-d", 1.0)),
		}
	}

	first, err := Aggregate(build(), snap, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	wantOrder := []string{"theme-d", "theme-b", "theme-a", "theme-c"}
	for i, want := range wantOrder {
		if first.Themes[i].ThemeID != want {
			t.Fatalf("rank %d: want=%s got=%s", i, want, first.Themes[i].ThemeID)
		}
	}

	// Permute input order; ranking must not move.
	msgs := build()
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	second, err := Aggregate(msgs, snap, Options{})
	if err != nil {
		t.Fatalf("Aggregate permuted: %v", err)
	}
	for i, want := range wantOrder {
		if second.Themes[i].ThemeID != want {
			t.Fatalf("permuted rank %d: want=%s got=%s", i, want, second.Themes[i].ThemeID)
		}
	}
}

func TestAggregateAbsentPersonaDoesNotContribute(t *testing.T) {
	speaks := uuid.New()
	silent := uuid.New()
	snap := weights.NewSnapshot(uuid.New(), 1, nil, map[uuid.UUID]float64{
		speaks: 1.0,
		silent: 5.0,
	})

	result, err := Aggregate([]TaggedMessage{
		msg(speaks, 0.5, tag("pricing", 0.8)),
	}, snap, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	theme := result.Themes[0]
	if theme.Contributors != 1 {
		t.Fatalf("silent persona must be absent, not zero: contributors=%d", theme.Contributors)
	}
	if _, ok := result.ByPersona[silent]; ok {
		t.Fatalf("silent persona must not appear in by_persona")
	}
}

func TestAggregateAgreementUsesSupportThreshold(t *testing.T) {
	yes := uuid.New()
	no := uuid.New()
	snap := weights.NewSnapshot(uuid.New(), 1, nil, map[uuid.UUID]float64{
		yes: 3.0,
		no:  1.0,
	})

	threshold := 0.5
	result, err := Aggregate([]TaggedMessage{
		msg(yes, 0.9, tag("pricing", 0.9)), // score 0.9 > 0.5: supports
		msg(no, -0.1, tag("pricing", 0.3)), // score 0.3 < 0.5: does not
	}, snap, Options{SupportThreshold: &threshold})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	theme := result.Themes[0]
	// (3*1 + 1*0) / 4
	if !almostEqual(theme.AgreementWeighted, 0.75) {
		t.Fatalf("agreement_weighted: want=0.75 got=%v", theme.AgreementWeighted)
	}
	if !almostEqual(theme.AgreementUnweighted, 0.5) {
		t.Fatalf("agreement_unweighted: want=0.5 got=%v", theme.AgreementUnweighted)
	}
}

func TestAggregateExplicitZeroThresholdIsNotTheDefault(t *testing.T) {
	persona := uuid.New()
	snap := weights.NewSnapshot(uuid.New(), 1, nil, nil)
	input := []TaggedMessage{
		msg(persona, 0.1, tag("pricing", 0.3)), // score 0.3
	}

	byDefault, err := Aggregate(input, snap, Options{})
	if err != nil {
		t.Fatalf("Aggregate default: %v", err)
	}
	if byDefault.Themes[0].AgreementUnweighted != 0 {
		t.Fatalf("score 0.3 must not support under the 0.5 default: %+v", byDefault.Themes[0])
	}

	zero := 0.0
	explicit, err := Aggregate(input, snap, Options{SupportThreshold: &zero})
	if err != nil {
		t.Fatalf("Aggregate zero threshold: %v", err)
	}
	if explicit.Themes[0].AgreementUnweighted != 1 {
		t.Fatalf("score 0.3 must support under an explicit 0 threshold: %+v", explicit.Themes[0])
	}
}
