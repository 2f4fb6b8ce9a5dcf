// Package sentence turns markdown into text a speech engine can read and
// splits that text into sentences.
package sentence

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var (
	md    = goldmark.New(goldmark.WithExtensions(extension.GFM))
	space = regexp.MustCompile(`\s+`)
)

// Plain extracts the speakable text of a markdown document. Markup, code
// blocks, raw HTML and link targets are dropped; headings, paragraphs and
// list items end with a period so they are read as separate sentences.
func Plain(markdown string) string {
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	var buf strings.Builder
	walk(doc, source, &buf)
	return strings.TrimSpace(space.ReplaceAllString(buf.String(), " "))
}

func walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML, *ast.AutoLink:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
		walkChildren(n, source, buf)
		endSentence(buf)
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return

	case *east.TableCell:
		walkChildren(n, source, buf)
		buf.WriteByte(' ')
		return

	case *east.TableHeader, *east.TableRow:
		walkChildren(n, source, buf)
		endSentence(buf)
		return
	}

	walkChildren(node, source, buf)
}

func walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walk(c, source, buf)
	}
}

// endSentence terminates the text written so far unless it already ends
// with punctuation.
func endSentence(buf *strings.Builder) {
	s := strings.TrimRightFunc(buf.String(), unicode.IsSpace)
	if s == "" {
		return
	}
	if strings.ContainsRune(".!?:;", rune(s[len(s)-1])) {
		buf.WriteByte(' ')
		return
	}
	buf.Reset()
	buf.WriteString(s)
	buf.WriteString(". ")
}

// Split breaks text into sentences. Abbreviations, decimals and initials
// do not end a sentence. The result is empty for blank text.
func Split(text string) []string {
	runes := []rune(strings.TrimSpace(space.ReplaceAllString(text, " ")))

	var out []string
	start := 0
	for i := range runes {
		if !isBoundary(runes, i) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isBoundary(runes []rune, pos int) bool {
	// The end of the text is handled by the caller, and a sentence only
	// ends before whitespace.
	if pos+1 >= len(runes) || !unicode.IsSpace(runes[pos+1]) {
		return false
	}

	punct := runes[pos]
	if isCloser(punct) && pos > 0 && isTerminal(runes[pos-1]) {
		punct = runes[pos-1]
		pos--
	} else if !isTerminal(punct) {
		return false
	}

	next := nextLetter(runes, pos+1)
	if punct != '.' {
		return true
	}

	word := wordBefore(runes, pos)
	switch {
	case strings.HasSuffix(word, ".."):
		// ellipsis, only a boundary when a new sentence clearly starts
		return unicode.IsUpper(next)
	case titles[word]:
		return false
	case abbreviations[word] || isInitial(word):
		return unicode.IsUpper(next)
	}
	return !unicode.IsLower(next)
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isCloser(r rune) bool { return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’' }

// wordBefore returns the lowercased word ending at pos, including its dots.
func wordBefore(runes []rune, pos int) string {
	start := pos
	for start > 0 && !unicode.IsSpace(runes[start-1]) {
		start--
	}
	word := strings.TrimLeftFunc(string(runes[start:pos+1]), func(r rune) bool {
		return r == '(' || r == '"' || r == '\''
	})
	return strings.TrimSuffix(strings.ToLower(word), ".")
}

// isInitial matches single letters and dotted runs such as "u.s".
func isInitial(word string) bool {
	for _, part := range strings.Split(word, ".") {
		if len([]rune(part)) != 1 {
			return false
		}
	}
	return word != ""
}

func nextLetter(runes []rune, pos int) rune {
	for ; pos < len(runes); pos++ {
		r := runes[pos]
		if unicode.IsSpace(r) || r == '"' || r == '\'' || r == '(' || r == '“' {
			continue
		}
		return r
	}
	return 0
}

var titles = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true,
}

var abbreviations = map[string]bool{
	// general
	"etc": true, "vs": true, "e.g": true, "i.e": true, "approx": true,
	"no": true, "inc": true, "ltd": true, "co": true, "corp": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
	"nov": true, "dec": true,

	// dosage and units
	"mg": true, "mcg": true, "ml": true, "g": true, "kg": true, "lb": true,
	"oz": true, "tab": true, "tabs": true, "cap": true, "caps": true,
	"min": true, "hr": true, "hrs": true, "sec": true,
	"b.i.d": true, "t.i.d": true, "q.i.d": true, "p.r.n": true,
}
