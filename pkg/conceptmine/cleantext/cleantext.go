// Package cleantext converts raw abstracts (HTML fragments with embedded
// LaTeX) into the plain text the rest of the pipeline analyzes.
package cleantext

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"

	"github.com/cognicore/conceptmine/pkg/conceptmine/internalerr"
)

// Converter produces clean text from a raw document.
type Converter interface {
	Convert(raw string) (string, error)
}

// Cleaner strips markup and math. The zero value is ready to use.
type Cleaner struct {
	// KeepMath leaves LaTeX math in place.
	KeepMath bool
}

const mathEnvs = `equation|align|eqnarray|gather|multline|displaymath|math`

var (
	// stands in for \$ while math is stripped
	escapedDollar = "\uE000"

	displayEnv   = regexp.MustCompile(`(?s)\\begin\{(` + mathEnvs + `)(\*?)\}.*?\\end\{(` + mathEnvs + `)(\*?)\}`)
	doubleDollar = regexp.MustCompile(`(?s)\$\$.*?\$\$`)
	parenMath    = regexp.MustCompile(`(?s)\\\(.*?\\\)`)
	bracketMath  = regexp.MustCompile(`(?s)\\\[.*?\\\]`)
	textCommand  = regexp.MustCompile(`\\(?:emph|textit|textbf|textrm|textsc|texttt|text|underline)\{([^{}]*)\}`)
	danglingMath = regexp.MustCompile(`\\(begin|end)\{(` + mathEnvs + `)\*?\}`)
	// layout environments such as itemize only lose their markers
	envMarker = regexp.MustCompile(`\\(?:begin|end)\{[A-Za-z]+\*?\}|\\item\b`)
)

// Convert implements Converter.
func (c Cleaner) Convert(raw string) (string, error) {
	text, err := htmlToText(raw)
	if err != nil {
		return "", fmt.Errorf("%w: html: %v", internalerr.ErrUpstreamFormat, err)
	}
	if !c.KeepMath {
		text, err = stripMath(text)
		if err != nil {
			return "", fmt.Errorf("%w: %v", internalerr.ErrUpstreamFormat, err)
		}
	}
	return Collapse(norm.NFKC.String(text)), nil
}

// Clean converts raw with c. When conversion fails it returns the raw text
// with collapsed whitespace together with the conversion error.
func Clean(c Converter, raw string) (string, error) {
	text, err := c.Convert(raw)
	if err != nil {
		return Collapse(raw), err
	}
	return text, nil
}

// Collapse replaces every run of whitespace with one space and trims.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Td: true, atom.Th: true, atom.Table: true, atom.Blockquote: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Math: true, atom.Head: true,
}

func htmlToText(s string) (string, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
			if blockElements[n.DataAtom] {
				buf.WriteByte(' ')
				defer buf.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return buf.String(), nil
}

func stripMath(s string) (string, error) {
	s = strings.ReplaceAll(s, `\$`, escapedDollar)
	s = displayEnv.ReplaceAllString(s, " ")
	s = doubleDollar.ReplaceAllString(s, " ")
	s = bracketMath.ReplaceAllString(s, " ")
	s = parenMath.ReplaceAllString(s, " ")
	s = stripInlineDollar(s)

	if strings.Contains(s, `\(`) || strings.Contains(s, `\[`) {
		return "", fmt.Errorf("unterminated inline math")
	}
	if m := danglingMath.FindString(s); m != "" {
		return "", fmt.Errorf("unterminated environment %s", m)
	}

	s = envMarker.ReplaceAllString(s, " ")
	s = textCommand.ReplaceAllString(s, "$1")
	return strings.ReplaceAll(s, escapedDollar, "$"), nil
}

// stripInlineDollar removes $...$ spans. An opening $ must be followed by a
// non-space; the closing $ must follow a non-space and not precede a digit.
// Any other $ is literal text, as in "US$5" or "$5 and $10".
func stripInlineDollar(s string) string {
	var b strings.Builder
	for {
		i := strings.IndexByte(s, '$')
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		rest := s[i+1:]
		if end := closingDollar(rest); end >= 0 {
			b.WriteByte(' ')
			s = rest[end+1:]
			continue
		}
		b.WriteByte('$')
		s = rest
	}
}

func closingDollar(rest string) int {
	first, _ := utf8.DecodeRuneInString(rest)
	if rest == "" || unicode.IsSpace(first) {
		return -1
	}
	j := strings.IndexByte(rest, '$')
	if j <= 0 {
		return -1
	}
	before, _ := utf8.DecodeLastRuneInString(rest[:j])
	if unicode.IsSpace(before) {
		return -1
	}
	if after, _ := utf8.DecodeRuneInString(rest[j+1:]); unicode.IsDigit(after) {
		return -1
	}
	return j
}
