package reply_parser

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
)

var (
	htmlTagRe = regexp.MustCompile(`(?i)<\s*/?\s*[a-z][a-z0-9]*(\s[^<>]*)?/?\s*>`)

	mimeHeaderLineRe = regexp.MustCompile(`(?i)^\s*(content-type|content-transfer-encoding|content-disposition|content-id|mime-version|x-[\w-]+)\s*:`)
	boundaryParamRe  = regexp.MustCompile(`(?i)^\s*boundary\s*[:=]`)
	boundaryLineRe   = regexp.MustCompile(`^\s*--[=_A-Za-z0-9.'+/:-]{6,}(--)?\s*$`)
	forwardedLineRe  = regexp.MustCompile(`(?i)^\s*(from|to|subject|date)\s*:`)
	base64LineRe     = regexp.MustCompile(`^[A-Za-z0-9+/=]{81,}$`)
	replyBoundaryRe  = regexp.MustCompile(`(?i)^\s*on\s.+\swrote:\s*$`)
	extraNewlinesRe  = regexp.MustCompile(`\n{3,}`)
)

// block elements end with a line break in the text rendering
const htmlBlockSelector = "p, div, tr, li, h1, h2, h3, h4, h5, h6, table, blockquote"

// Normalizer turns a raw RFC822 message into the plain text the extractor works on.
type Normalizer struct {
	// StripQuotedReplies drops everything after the first "On ... wrote:" line.
	StripQuotedReplies bool
}

func NewNormalizer(stripQuotedReplies bool) *Normalizer {
	return &Normalizer{StripQuotedReplies: stripQuotedReplies}
}

// Normalize never panics; malformed input yields whatever text could be
// recovered, possibly "".
func (n *Normalizer) Normalize(raw []byte) (body string) {
	defer func() {
		if r := recover(); r != nil {
			body = ""
		}
	}()

	return n.NormalizeText(selectBody(raw))
}

// NormalizeText applies HTML stripping and line cleanup to an already extracted body.
func (n *Normalizer) NormalizeText(text string) (body string) {
	defer func() {
		if r := recover(); r != nil {
			body = ""
		}
	}()

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if htmlTagRe.MatchString(text) {
		text = stripHTML(text)
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if n.StripQuotedReplies && replyBoundaryRe.MatchString(line) {
			break
		}
		if dropLine(line) {
			continue
		}
		kept = append(kept, line)
	}

	text = strings.Join(kept, "\n")
	text = extraNewlinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// selectBody prefers the parsed text part, then the HTML part, then whatever
// follows the first blank line.
func selectBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err == nil && env != nil {
		if strings.TrimSpace(env.Text) != "" {
			return env.Text
		}
		if strings.TrimSpace(env.HTML) != "" {
			return env.HTML
		}
	}

	return splitBody(string(raw))
}

func splitBody(raw string) string {
	crlf := strings.Index(raw, "\r\n\r\n")
	lf := strings.Index(raw, "\n\n")
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return raw[crlf+4:]
	case lf >= 0:
		return raw[lf+2:]
	default:
		return raw
	}
}

// stripHTML renders the body text of an HTML document. Comments are dropped and
// entities decoded by the parser.
func stripHTML(text string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(htmlBlockSelector).AppendHtml("\n")

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return strings.ReplaceAll(root.Text(), "\u00a0", " ")
}

func dropLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	switch {
	case strings.HasPrefix(trimmed, ">"):
		return true
	case mimeHeaderLineRe.MatchString(line), boundaryParamRe.MatchString(line):
		return true
	case boundaryLineRe.MatchString(line):
		return true
	case forwardedLineRe.MatchString(line):
		return true
	case base64LineRe.MatchString(trimmed):
		return true
	}
	return false
}
