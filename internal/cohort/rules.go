package cohort

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
)

// Rule maps a division or tournament label pattern to a cohort, e.g.
// "(?i)bu08|stripes" -> 2018.
type Rule struct {
	Pattern string       `yaml:"pattern"`
	Cohort  model.Cohort `yaml:"cohort"`

	re *regexp.Regexp
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads and compiles a YAML rules file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cohort: read rules %s", path)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "cohort: parse rules %s", path)
	}
	for i := range f.Rules {
		re, err := regexp.Compile(f.Rules[i].Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "cohort: compile rule pattern %q", f.Rules[i].Pattern)
		}
		f.Rules[i].re = re
	}
	return f.Rules, nil
}
