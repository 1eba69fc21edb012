package nlp

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b\w\w+\b`)

// Candidates returns the distinct 1..maxN word phrases of text in first-seen
// order. Stop words are removed before phrases are formed, so "fix the
// parser" yields "fix", "parser" and "fix parser".
func Candidates(text string, maxN int) []string {
	var tokens []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if !stopWords[w] {
			tokens = append(tokens, w)
		}
	}

	seen := make(map[string]bool)
	var out []string
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			phrase := strings.Join(tokens[i:i+n], " ")
			if !seen[phrase] {
				seen[phrase] = true
				out = append(out, phrase)
			}
		}
	}
	return out
}

// stopWords is a common English stop word list.
var stopWords = func() map[string]bool {
	words := strings.Fields(`
a about above across after afterwards again against all almost alone along
already also although always am among amongst amount an and another any anyhow
anyone anything anyway anywhere are around as at back be became because become
becomes becoming been before beforehand behind being below beside besides
between beyond both bottom but by call can cannot could did do does doing done
down due during each eg either else elsewhere enough etc even ever every
everyone everything everywhere except few first for former formerly from front
full further get give go had has hasnt have having he hence her here hereafter
hereby herein hereupon hers herself him himself his how however ie if in
indeed into is it its itself just keep last latter latterly least less ltd made
many may me meanwhile might mine more moreover most mostly move much must my
myself name namely neither never nevertheless next no nobody none noone nor not
nothing now nowhere of off often on once one only onto or other others
otherwise our ours ourselves out over own part per perhaps please put rather re
same see seem seemed seeming seems serious several she should show side since
so some somehow someone something sometime sometimes somewhere still such take
than that the their them themselves then thence there thereafter thereby
therefore therein thereupon these they thing third this those though three
through throughout thru thus to together too top toward towards two under until
up upon us very via was we well were what whatever when whence whenever where
whereafter whereas whereby wherein whereupon wherever whether which while
whither who whoever whole whom whose why will with within without would yet you
your yours yourself yourselves
`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
