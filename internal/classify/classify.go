// Package classify decides what kind of message a chat turn is and tags it.
//
// Two strategies exist. StrategyLocalOnly uses the local similarity models
// and lexical checks. StrategyLocalThenExternal runs the local pass first and
// then asks the external service, merging the answers. A missing external
// client silently degrades to the local pass.
package classify

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/chatlog/internal/config"
)

// Type is the semantic kind of a message.
type Type string

const (
	TypeCodeChange    Type = "code-change"
	TypeQuestion      Type = "question"
	TypeClarification Type = "clarification"
	TypeDiscussion    Type = "discussion"
	TypeParsingFailed Type = "parsing-failed"
	TypeError         Type = "error"
	TypeUnknown       Type = "unknown"
)

// Local tags.
const (
	TagQuestion       = "question"
	TagFunctionModify = "function modify"
	TagBugFixed       = "bug fixed"
	TagDiscussion     = "discussion"
)

const (
	// NoSourceModel marks results produced without an external backend.
	NoSourceModel = "N/A"

	// MaxTags bounds the merged tag list.
	MaxTags = 6

	// DefaultThreshold is the minimum similarity for a sentence to count as evidence.
	DefaultThreshold = 0.35
)

// Concept descriptions the local pass compares sentences against.
const (
	FeatureConcept = "A developer is creating, implementing, refactoring, or adding a new function/method to the code."
	BugfixConcept  = "A developer is fixing, patching, or resolving a bug, error, issue, or problem in the software."
)

// Strategy selects which backends a Classifier consults.
type Strategy int

const (
	StrategyLocalOnly Strategy = iota
	StrategyLocalThenExternal
)

func (s Strategy) String() string {
	switch s {
	case StrategyLocalOnly:
		return config.StrategyLocalOnly
	case StrategyLocalThenExternal:
		return config.StrategyLocalThenExternal
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses "local_only" or "local_then_external".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case config.StrategyLocalOnly, "local":
		return StrategyLocalOnly, nil
	case config.StrategyLocalThenExternal, "":
		return StrategyLocalThenExternal, nil
	default:
		return 0, fmt.Errorf("unknown classifier strategy %q", s)
	}
}

// NormalizeType maps a free-form type from the external service onto one of
// code-change, question, clarification or discussion.
func NormalizeType(v string) Type {
	t := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "_", "-")
	if t == "code change" {
		t = string(TypeCodeChange)
	}
	switch Type(t) {
	case TypeCodeChange, TypeQuestion, TypeClarification, TypeDiscussion:
		return Type(t)
	}
	return TypeDiscussion
}

// MergeTags returns primary followed by the members of extra not already
// present, trimmed of blanks and capped at MaxTags.
func MergeTags(primary, extra []string) []string {
	out := make([]string, 0, MaxTags)
	seen := make(map[string]bool, len(primary)+len(extra))
	for _, list := range [][]string{primary, extra} {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			if tag == "" || seen[tag] {
				continue
			}
			if len(out) == MaxTags {
				return out
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}
