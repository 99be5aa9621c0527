package extract

import (
	"strings"

	"github.com/cognicore/conceptmine/pkg/conceptmine/syntax"
)

// Match is an inclusive token range [First, Last] matched by the compound pattern.
type Match struct {
	First int
	Last  int
}

// MatchCompounds scans tokens for DET? NOUN "of" ADJ* NOUN. Like a token
// matcher with an optional operator, a match starting at a determiner is
// reported alongside the shorter match starting at the noun.
func MatchCompounds(tokens []syntax.Token) []Match {
	var matches []Match
	for i := range tokens {
		if tokens[i].POS == syntax.POSDet && i+1 < len(tokens) {
			if last, ok := matchCompoundAt(tokens, i+1); ok {
				matches = append(matches, Match{First: i, Last: last})
			}
		}
		if last, ok := matchCompoundAt(tokens, i); ok {
			matches = append(matches, Match{First: i, Last: last})
		}
	}
	return matches
}

// matchCompoundAt matches NOUN "of" ADJ* NOUN starting at i and returns the
// index of the final noun.
func matchCompoundAt(tokens []syntax.Token, i int) (int, bool) {
	if i+2 >= len(tokens) || tokens[i].POS != syntax.POSNoun || !isOf(tokens[i+1]) {
		return 0, false
	}
	j := i + 2
	for j < len(tokens) && tokens[j].POS == syntax.POSAdj {
		j++
	}
	if j < len(tokens) && tokens[j].POS == syntax.POSNoun {
		return j, true
	}
	return 0, false
}

func isOf(tok syntax.Token) bool {
	if tok.POS != syntax.POSAdp {
		return false
	}
	return strings.ToLower(tok.Text) == "of" || strings.ToLower(tok.Lemma) == "of"
}
