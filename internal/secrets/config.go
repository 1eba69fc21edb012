package secrets

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Config configures the scrubber.
type Config struct {
	Enabled bool
	// UseGitleaks runs the gitleaks default ruleset in addition to Rules.
	UseGitleaks     bool
	Rules           []Rule
	RedactionString string
	// AllowList holds patterns whose matches are left untouched.
	AllowList []string
}

// Rule is a single regex detection rule.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	// Keywords, when set, must appear (case-insensitively) for the rule to run.
	Keywords []string
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig returns scrubbing with gitleaks plus DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		UseGitleaks:     true,
		Rules:           DefaultRules(),
		RedactionString: "[REDACTED]",
	}
}

func (c *Config) compile() ([]*compiledRule, []*regexp.Regexp, error) {
	rules := make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: ID is required", i)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil || rule.Pattern == "" {
			return nil, nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidRegex, rule.ID, err)
		}
		cr := &compiledRule{Rule: rule, pattern: re}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		rules = append(rules, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(c.AllowList))
	for _, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: allowlist %q: %v", ErrInvalidRegex, p, err)
		}
		allow = append(allow, re)
	}
	return rules, allow, nil
}

// LoadAllowlist reads content patterns from a TOML file shaped like a
// gitleaks allowlist:
//
//	[allowlist]
//	regexes = ['''EXAMPLE_KEY_.*''']
//
// A missing file yields an empty list.
func LoadAllowlist(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var file struct {
		Allowlist struct {
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}
	for _, p := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, p, path, err)
		}
	}
	return file.Allowlist.Regexes, nil
}
