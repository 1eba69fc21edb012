package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding describes a redacted span. The secret itself is never kept.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
}

// Result is the outcome of scrubbing a piece of text.
type Result struct {
	Scrubbed string    `json:"scrubbed"`
	Findings []Finding `json:"findings,omitempty"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// Scrubber redacts secrets from text.
type Scrubber struct {
	cfg       *Config
	rules     []*compiledRule
	allowList []*regexp.Regexp

	// gitleaks detectors are not documented as safe for concurrent use.
	mu       sync.Mutex
	detector *detect.Detector
}

type span struct {
	start, end int
}

// New builds a Scrubber. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RedactionString == "" {
		cfg.RedactionString = "[REDACTED]"
	}
	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}

	s := &Scrubber{cfg: cfg, rules: rules, allowList: allow}
	if cfg.Enabled && cfg.UseGitleaks {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("loading gitleaks rules: %w", err)
		}
		s.detector = d
	}
	return s, nil
}

// Enabled reports whether Scrub modifies text.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// Scrub replaces every detected secret with the redaction string.
// A nil or disabled Scrubber returns content unchanged.
func (s *Scrubber) Scrub(content string) *Result {
	if !s.Enabled() || content == "" {
		return &Result{Scrubbed: content}
	}

	var (
		findings []Finding
		spans    []span
	)

	for _, rule := range s.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			spans = append(spans, span{m[0], m[1]})
			findings = append(findings, Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Line:        strings.Count(content[:m[0]], "\n") + 1,
			})
		}
	}

	if s.detector != nil {
		s.mu.Lock()
		leaks := s.detector.DetectString(content)
		s.mu.Unlock()
		for _, f := range leaks {
			if f.Secret == "" || s.allowed(f.Secret) {
				continue
			}
			found := false
			for offset := 0; ; {
				idx := strings.Index(content[offset:], f.Secret)
				if idx < 0 {
					break
				}
				start := offset + idx
				spans = append(spans, span{start, start + len(f.Secret)})
				offset = start + len(f.Secret)
				found = true
			}
			if found {
				findings = append(findings, Finding{
					RuleID:      f.RuleID,
					Description: f.Description,
					Line:        f.StartLine,
				})
			}
		}
	}

	if len(spans) == 0 {
		return &Result{Scrubbed: content}
	}
	return &Result{
		Scrubbed: redact(content, spans, s.cfg.RedactionString),
		Findings: findings,
	}
}

// ScrubString is Scrub returning only the redacted text.
func (s *Scrubber) ScrubString(content string) string {
	return s.Scrub(content).Scrubbed
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allowList {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// redact merges overlapping spans and replaces them back to front.
func redact(content string, spans []span, with string) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, sp := range merged {
		b.WriteString(content[prev:sp.start])
		b.WriteString(with)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String()
}
