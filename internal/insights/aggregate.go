package insights

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/weights"
)

const DefaultSupportThreshold = 0.5

type AggregationErrorCode string

const (
	AggregationErrorValidation AggregationErrorCode = "validation_failed"
)

type AggregationError struct {
	Code    AggregationErrorCode
	Message string
}

func (e *AggregationError) Error() string {
	if e == nil {
		return "aggregation failed"
	}
	return fmt.Sprintf("aggregation failed (code=%s): %s", e.Code, e.Message)
}

// TaggedMessage is one participant message with tagging output attached.
// Facilitator messages never reach the engine; callers filter them out.
type TaggedMessage struct {
	MessageID uuid.UUID
	PersonaID uuid.UUID
	Themes    []research.ThemeTag
	Sentiment float64
}

type Options struct {
	// SupportThreshold is the theme score above which a persona counts as
	// supporting the theme for agreement purposes. Nil means the default;
	// an explicit 0 makes every positive theme score count as support.
	SupportThreshold *float64
}

// Threshold resolves the effective support threshold.
func (o Options) Threshold() float64 {
	if o.SupportThreshold == nil {
		return DefaultSupportThreshold
	}
	return *o.SupportThreshold
}

// PersonaThemeMetrics is one persona's contribution to one theme.
type PersonaThemeMetrics struct {
	Frequency  int     `json:"frequency"`
	ThemeScore float64 `json:"theme_score"`
	Sentiment  float64 `json:"sentiment"`
	Supports   bool    `json:"supports"`
}

// ThemeMetrics is the study-level rollup for one theme. Weighted and
// unweighted values are always populated together. When every contributing
// weight is exactly zero the weighted values are undefined: ZeroDenominator
// is set and the weighted fields hold 0, never a silent division result.
type ThemeMetrics struct {
	ThemeID             string  `json:"theme_id"`
	ScoreWeighted       float64 `json:"score_weighted"`
	ScoreUnweighted     float64 `json:"score_unweighted"`
	AgreementWeighted   float64 `json:"agreement_weighted"`
	AgreementUnweighted float64 `json:"agreement_unweighted"`
	SentimentWeighted   float64 `json:"sentiment_weighted"`
	SentimentUnweighted float64 `json:"sentiment_unweighted"`
	Contributors        int     `json:"contributors"`
	ZeroDenominator     bool    `json:"zero_denominator,omitempty"`
}

type Result struct {
	// Themes are ranked: score_weighted descending, then contributing-persona
	// count descending, then theme id ascending.
	Themes      []ThemeMetrics                               `json:"themes"`
	ByPersona   map[uuid.UUID]map[string]PersonaThemeMetrics `json:"by_persona"`
	Limitations []string                                     `json:"limitations,omitempty"`
}

// WeightedMean computes Σ(w·v)/Σw over parallel slices. Zero weights stay in
// the denominator. ok=false signals an undefined result (Σw == 0).
func WeightedMean(weights, values []float64) (float64, bool) {
	var num, den float64
	for i := range values {
		num += weights[i] * values[i]
		den += weights[i]
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Aggregate computes per-theme and per-persona metrics over tagged messages
// using the given weight snapshot. The computation is pure and deterministic:
// identical inputs yield identical results regardless of input order.
func Aggregate(msgs []TaggedMessage, snap weights.Snapshot, opts Options) (Result, error) {
	threshold := opts.Threshold()

	type cell struct {
		frequency     int
		confidenceSum float64
		sentimentSum  float64
		messageCount  int
	}
	cells := map[uuid.UUID]map[string]*cell{}

	for _, msg := range msgs {
		if msg.PersonaID == uuid.Nil {
			return Result{}, &AggregationError{
				Code:    AggregationErrorValidation,
				Message: fmt.Sprintf("message %s has no persona", msg.MessageID),
			}
		}
		seen := map[string]bool{}
		for _, tag := range msg.Themes {
			if tag.Theme == "" {
				continue
			}
			byTheme := cells[msg.PersonaID]
			if byTheme == nil {
				byTheme = map[string]*cell{}
				cells[msg.PersonaID] = byTheme
			}
			c := byTheme[tag.Theme]
			if c == nil {
				c = &cell{}
				byTheme[tag.Theme] = c
			}
			c.frequency++
			c.confidenceSum += tag.Confidence
			// Sentiment is per message: count each carrying message once even
			// when it mentions the theme repeatedly.
			if !seen[tag.Theme] {
				c.sentimentSum += msg.Sentiment
				c.messageCount++
				seen[tag.Theme] = true
			}
		}
	}

	byPersona := map[uuid.UUID]map[string]PersonaThemeMetrics{}
	themeContribs := map[string][]personaContribution{}
	for personaID, byTheme := range cells {
		w := snap.Get(personaID)
		if w < 0 {
			return Result{}, &AggregationError{
				Code:    AggregationErrorValidation,
				Message: fmt.Sprintf("persona %s has negative weight %v in snapshot", personaID, w),
			}
		}
		personaOut := map[string]PersonaThemeMetrics{}
		for theme, c := range byTheme {
			strength := c.confidenceSum / float64(c.frequency)
			score := float64(c.frequency) * strength
			sentiment := c.sentimentSum / float64(c.messageCount)
			metrics := PersonaThemeMetrics{
				Frequency:  c.frequency,
				ThemeScore: score,
				Sentiment:  sentiment,
				Supports:   score > threshold,
			}
			personaOut[theme] = metrics
			themeContribs[theme] = append(themeContribs[theme], personaContribution{
				personaID: personaID,
				weight:    w,
				metrics:   metrics,
			})
		}
		byPersona[personaID] = personaOut
	}

	themeIDs := make([]string, 0, len(themeContribs))
	for theme := range themeContribs {
		themeIDs = append(themeIDs, theme)
	}
	sort.Strings(themeIDs)

	var limitations []string
	themes := make([]ThemeMetrics, 0, len(themeIDs))
	for _, theme := range themeIDs {
		contribs := themeContribs[theme]
		sort.Slice(contribs, func(i, j int) bool {
			return contribs[i].personaID.String() < contribs[j].personaID.String()
		})

		ws := make([]float64, len(contribs))
		scores := make([]float64, len(contribs))
		sentiments := make([]float64, len(contribs))
		supports := make([]float64, len(contribs))
		for i, contrib := range contribs {
			ws[i] = contrib.weight
			scores[i] = contrib.metrics.ThemeScore
			sentiments[i] = contrib.metrics.Sentiment
			if contrib.metrics.Supports {
				supports[i] = 1
			}
		}

		tm := ThemeMetrics{
			ThemeID:             theme,
			ScoreUnweighted:     mean(scores),
			SentimentUnweighted: mean(sentiments),
			AgreementUnweighted: mean(supports),
			Contributors:        len(contribs),
		}
		scoreW, ok := WeightedMean(ws, scores)
		if !ok {
			tm.ZeroDenominator = true
			limitations = append(limitations, fmt.Sprintf(
				"theme %q: weighted metrics undefined, every contributing weight is zero", theme,
			))
		} else {
			tm.ScoreWeighted = scoreW
			tm.SentimentWeighted, _ = WeightedMean(ws, sentiments)
			tm.AgreementWeighted, _ = WeightedMean(ws, supports)
		}
		themes = append(themes, tm)
	}

	sort.SliceStable(themes, func(i, j int) bool {
		if themes[i].ScoreWeighted != themes[j].ScoreWeighted {
			return themes[i].ScoreWeighted > themes[j].ScoreWeighted
		}
		if themes[i].Contributors != themes[j].Contributors {
			return themes[i].Contributors > themes[j].Contributors
		}
		return themes[i].ThemeID < themes[j].ThemeID
	})

	return Result{Themes: themes, ByPersona: byPersona, Limitations: limitations}, nil
}

type personaContribution struct {
	personaID uuid.UUID
	weight    float64
	metrics   PersonaThemeMetrics
}
