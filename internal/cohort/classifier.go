// Package cohort assigns canonical teams a competitive cohort (birth
// year) with a confidence score combined from weak, conflicting signals.
package cohort

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/LivingRiskyCo/dsx-tracker/internal/config"
	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// SignalKind names where a cohort signal came from.
type SignalKind string

const (
	// KindNameToken is an explicit age or birth-year token in the team
	// name or division label.
	KindNameToken SignalKind = "name_token"
	// KindDivision is cohort-specific division/tournament metadata.
	KindDivision SignalKind = "division"
	// KindCoOccurrence is sharing a match with already-classified
	// opponents; applicable only once at least one resolved match exists.
	KindCoOccurrence SignalKind = "co_occurrence"
)

// Signal is one weak cohort vote. Signals are combined by weighted sum
// per candidate cohort, never by simple override.
type Signal struct {
	Kind   SignalKind
	Weight float64
	Cohort model.Cohort
}

// Classifier combines cohort signals for canonical teams.
type Classifier struct {
	cfg   config.CohortConfig
	rules []Rule
}

// New builds a classifier, loading the optional division rules file.
func New(cfg config.CohortConfig) (*Classifier, error) {
	c := &Classifier{cfg: cfg}
	if cfg.RulesPath != "" {
		rules, err := LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
		c.rules = rules
	}
	return c, nil
}

var (
	birthYearRe = regexp.MustCompile(`\b(20[0-2]\d)\b`)
	uAgeRe      = regexp.MustCompile(`\b(?:bu|u|b)(\d{1,2})\b`)
	yearSquadRe = regexp.MustCompile(`\b(\d{2})[bg]\b`)
)

// yearFromName extracts a birth year from a lowercased name: an
// explicit "2018", an age label ("u8", "bu08", "b08") converted via the
// season year, or a two-digit year-squad marker ("18b").
func (c *Classifier) yearFromName(name string) (model.Cohort, bool) {
	name = strings.ToLower(name)
	if m := birthYearRe.FindStringSubmatch(name); m != nil {
		return model.Cohort(m[1]), true
	}
	if m := uAgeRe.FindStringSubmatch(name); m != nil {
		age, err := strconv.Atoi(m[1])
		if err == nil && age >= 4 && age <= 19 {
			return model.Cohort(strconv.Itoa(c.cfg.SeasonYear - age)), true
		}
	}
	if m := yearSquadRe.FindStringSubmatch(name); m != nil {
		yy, err := strconv.Atoi(m[1])
		if err == nil && yy >= 5 && yy <= 25 {
			return model.Cohort(fmt.Sprintf("20%02d", yy)), true
		}
	}
	return "", false
}

// NameSignal fires when a team name carries an explicit age token.
func (c *Classifier) NameSignal(rawName string) (Signal, bool) {
	if cohort, ok := c.yearFromName(rawName); ok {
		return Signal{Kind: KindNameToken, Weight: c.cfg.NameTokenWeight, Cohort: cohort}, true
	}
	return Signal{}, false
}

// DivisionSignal fires when a division/tournament label matches a
// configured rule or carries an age token itself.
func (c *Classifier) DivisionSignal(label string) (Signal, bool) {
	for _, rule := range c.rules {
		if rule.re != nil && rule.re.MatchString(label) {
			return Signal{Kind: KindDivision, Weight: c.cfg.DivisionWeight, Cohort: rule.Cohort}, true
		}
	}
	if cohort, ok := c.yearFromName(label); ok {
		return Signal{Kind: KindDivision, Weight: c.cfg.DivisionWeight, Cohort: cohort}, true
	}
	return Signal{}, false
}

// HintSignal converts an explicit source-record cohort hint into a
// division-strength signal.
func (c *Classifier) HintSignal(hint model.Cohort) (Signal, bool) {
	if !hint.Known() {
		return Signal{}, false
	}
	return Signal{Kind: KindDivision, Weight: c.cfg.DivisionWeight, Cohort: hint}, true
}

// CoOccurrenceSignal votes for the most common cohort among a team's
// already-classified opponents.
func (c *Classifier) CoOccurrenceSignal(opponents []model.Cohort) (Signal, bool) {
	counts := make(map[model.Cohort]int)
	for _, oc := range opponents {
		if oc.Known() {
			counts[oc]++
		}
	}
	var top model.Cohort
	topCount := 0
	for cohort, n := range counts {
		if n > topCount || (n == topCount && cohort < top) {
			top, topCount = cohort, n
		}
	}
	if topCount == 0 {
		return Signal{}, false
	}
	return Signal{Kind: KindCoOccurrence, Weight: c.cfg.CoOccurrenceWeight, Cohort: top}, true
}

// Combine folds an ordered signal list with a weighted-sum reducer. The
// cohort with the highest combined weight wins; confidence is that
// weight normalized against the total weight of all signal kinds.
// No firing signal yields (unknown, 0).
func (c *Classifier) Combine(signals []Signal) (model.Cohort, float64) {
	totals := make(map[model.Cohort]float64)
	fired := make(map[SignalKind]bool)
	for _, s := range signals {
		if !s.Cohort.Known() {
			continue
		}
		// Each signal kind votes once; repeats of the same kind carry no
		// extra weight.
		if fired[s.Kind] {
			continue
		}
		fired[s.Kind] = true
		totals[s.Cohort] += s.Weight
	}
	if len(totals) == 0 {
		return model.CohortUnknown, 0
	}

	var best model.Cohort
	bestWeight := -1.0
	for cohort, w := range totals {
		if w > bestWeight || (w == bestWeight && cohort < best) {
			best, bestWeight = cohort, w
		}
	}

	denom := c.cfg.NameTokenWeight + c.cfg.DivisionWeight + c.cfg.CoOccurrenceWeight
	if denom <= 0 {
		return model.CohortUnknown, 0
	}
	conf := bestWeight / denom
	if conf > 1 {
		conf = 1
	}
	return best, conf
}

// Reconcile applies the reclassification rule across passes: a stronger
// signal may raise or change the assignment, but a weaker one arriving
// after a high-confidence classification never downgrades it.
func (c *Classifier) Reconcile(prev model.Cohort, prevConf float64, next model.Cohort, nextConf float64) (model.Cohort, float64) {
	if prev.Known() && prevConf >= c.cfg.StickyConfidence && nextConf < prevConf {
		return prev, prevConf
	}
	if !next.Known() && prev.Known() {
		return prev, prevConf
	}
	return next, nextConf
}
