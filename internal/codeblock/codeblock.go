package codeblock

import (
	"regexp"
	"strings"
)

// Result holds the extracted code. A nil pointer means the value is absent,
// which is different from an empty string.
type Result struct {
	All    *string
	Before *string
	After  *string
}

// Found reports whether any code block was found.
func (r Result) Found() bool {
	return r.All != nil
}

// Block is one fenced region.
type Block struct {
	Lang string
	Code string

	// start and end are byte offsets of the whole fence in the source text.
	start, end int
}

var (
	fencePattern = regexp.MustCompile("(?s)```[ \\t]*([\\w+#.-]*)[^\\n]*\\n(.*?)```")

	beforeLabel = regexp.MustCompile(`(?i)\b(before|old|original|current)\b`)
	afterLabel  = regexp.MustCompile(`(?i)\b(after|new|updated|changed|fixed)\b`)

	changeVocabulary = regexp.MustCompile(`(?i)\b(before|after|change[sd]?|changing|updat(?:e|es|ed|ing)|modif(?:y|ies|ied|ying)|fix(?:es|ed|ing)?|replac(?:e|es|ed|ing)|refactor(?:s|ed|ing)?)\b`)

	beforeIndicators = regexp.MustCompile(`(?i)\b(old|previous|original|before|replaced|current implementation|existing code)\b`)
	afterIndicators  = regexp.MustCompile(`(?i)\b(new|updated|modified|fixed|improved|enhanced|added|created)\b`)

	oldMarker = markerPattern("old")
	newMarker = markerPattern("new")
)

// markerPattern matches fields like old_string: "...", "old_value": '...' or
// old code = {...}.
func markerPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)["']?\b` + prefix +
		`[_ -]?(?:value|string|str|code|text)["']?\s*[:=]\s*` +
		`(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)'|\{(.*?)\})`)
}

// Blocks returns the non-empty fenced regions of text in order, trimmed.
func Blocks(text string) []Block {
	var blocks []Block
	for _, m := range fencePattern.FindAllStringSubmatchIndex(text, -1) {
		code := strings.TrimSpace(text[m[4]:m[5]])
		if code == "" {
			continue
		}
		blocks = append(blocks, Block{
			Lang:  text[m[2]:m[3]],
			Code:  code,
			start: m[0],
			end:   m[1],
		})
	}
	return blocks
}

// Extract splits the code found in text into all/before/after.
func Extract(text string) Result {
	blocks := Blocks(text)
	if len(blocks) == 0 {
		return Result{}
	}

	codes := make([]string, len(blocks))
	for i, b := range blocks {
		codes[i] = b.Code
	}
	all := strings.Join(codes, "\n\n")
	res := Result{All: &all}

	prose := proseOf(text, blocks)

	before, after := labeled(text, blocks)
	if before >= 0 || after >= 0 {
		if before >= 0 {
			res.Before = ptr(blocks[before].Code)
		}
		if after >= 0 {
			res.After = ptr(blocks[after].Code)
		}
		return res
	}

	if len(blocks) == 2 && changeVocabulary.MatchString(prose) {
		res.Before = ptr(blocks[0].Code)
		res.After = ptr(blocks[1].Code)
		return res
	}

	if old, neu, ok := markers(text); ok {
		res.Before, res.After = old, neu
		return res
	}

	switch {
	case len(blocks) == 1:
		if beforeDominates(prose) {
			res.Before = ptr(blocks[0].Code)
		} else {
			res.After = ptr(blocks[0].Code)
		}
	case len(blocks) > 2:
		res.Before = ptr(blocks[0].Code)
		res.After = ptr(blocks[len(blocks)-1].Code)
	}
	return res
}

// labeled returns the indexes of the first before- and after-labeled blocks,
// or -1.
func labeled(text string, blocks []Block) (before, after int) {
	before, after = -1, -1
	prev := 0
	for i, b := range blocks {
		line := lastLine(text[prev:b.start])
		prev = b.end

		kind := labelKind(line)
		switch {
		case kind == "before" && before < 0:
			before = i
		case kind == "after" && after < 0:
			after = i
		}
	}
	return before, after
}

// labelKind classifies a lead-in line. When both kinds appear, the label
// closest to the fence wins.
func labelKind(line string) string {
	if line == "" {
		return ""
	}
	b := beforeLabel.FindAllStringIndex(line, -1)
	a := afterLabel.FindAllStringIndex(line, -1)
	switch {
	case len(b) == 0 && len(a) == 0:
		return ""
	case len(a) == 0:
		return "before"
	case len(b) == 0:
		return "after"
	}
	if b[len(b)-1][0] > a[len(a)-1][0] {
		return "before"
	}
	return "after"
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, " \t\r\n"), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// proseOf returns text with every fenced region removed.
func proseOf(text string, blocks []Block) string {
	var sb strings.Builder
	prev := 0
	for _, b := range blocks {
		sb.WriteString(text[prev:b.start])
		sb.WriteByte('\n')
		prev = b.end
	}
	sb.WriteString(text[prev:])
	return sb.String()
}

func markers(text string) (before, after *string, ok bool) {
	before = markerValue(oldMarker, text)
	after = markerValue(newMarker, text)
	return before, after, before != nil || after != nil
}

func markerValue(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	for _, g := range m[1:] {
		if v := strings.TrimSpace(unescape(g)); v != "" {
			return &v
		}
	}
	return nil
}

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\'`, `'`, `\\`, `\`)

func unescape(s string) string {
	return escapes.Replace(s)
}

func beforeDominates(prose string) bool {
	return len(beforeIndicators.FindAllString(prose, -1)) > len(afterIndicators.FindAllString(prose, -1))
}

func ptr(s string) *string { return &s }
