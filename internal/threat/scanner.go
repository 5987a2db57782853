// Package threat matches request content against known attack signatures.
package threat

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Kind names an attack signature family.
type Kind string

const (
	KindXSS              Kind = "xss"
	KindSQLInjection     Kind = "sqlInjection"
	KindPathTraversal    Kind = "pathTraversal"
	KindCommandInjection Kind = "commandInjection"
	KindLFI              Kind = "lfi"
	KindRFI              Kind = "rfi"
)

// Source names the request surface a match came from.
type Source string

const (
	SourceURL     Source = "URL"
	SourceBody    Source = "Body"
	SourceHeaders Source = "Headers"
	SourceQuery   Source = "Query"
)

// Severity grades a match or event.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Match is one rule hit on one surface.
type Match struct {
	Kind     Kind     `json:"type"`
	Source   Source   `json:"source"`
	Severity Severity `json:"severity"`
}

// Rule is a named pattern with a fixed severity.
type Rule struct {
	Kind     Kind
	Pattern  *regexp.Regexp
	Severity Severity
}

// DefaultRules returns the stock rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Kind:     KindXSS,
			Pattern:  regexp.MustCompile(`(?is)<script[^>]*>.*?</script>|<script\b|javascript:|vbscript:|\bon\w+\s*=`),
			Severity: SeverityHigh,
		},
		{
			Kind:     KindSQLInjection,
			Pattern:  regexp.MustCompile(`(?i)\b(union|select|insert|update|delete|drop|create|alter|exec|execute)\b`),
			Severity: SeverityCritical,
		},
		{
			Kind:     KindPathTraversal,
			Pattern:  regexp.MustCompile(`(?i)\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f|%2e%2e%5c|\.\.%5c`),
			Severity: SeverityHigh,
		},
		{
			Kind:     KindCommandInjection,
			Pattern:  regexp.MustCompile(`(?i)\b(cmd|bash|sh|powershell|system|shell_exec|passthru|popen|proc_open|eval|exec)\b`),
			Severity: SeverityCritical,
		},
		{
			Kind:     KindLFI,
			Pattern:  regexp.MustCompile(`(?i)\b(include|require|include_once|require_once)\b`),
			Severity: SeverityMedium,
		},
		{
			Kind:     KindRFI,
			Pattern:  regexp.MustCompile(`(?i)\b(https?|ftp|file|php|asp|jsp)://|\bdata:`),
			Severity: SeverityHigh,
		},
	}
}

// Request holds the surfaces to scan. Empty fields are skipped.
type Request struct {
	URL     string
	Body    []byte
	Headers http.Header
	Query   url.Values
}

// Scanner evaluates an ordered rule table. It is immutable and safe for
// concurrent use.
type Scanner struct {
	rules []Rule
}

// NewScanner builds a scanner. With no rules it uses DefaultRules.
func NewScanner(rules ...Rule) *Scanner {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Scanner{rules: append([]Rule(nil), rules...)}
}

// Rules returns a copy of the rule table.
func (s *Scanner) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Scan checks every surface against every rule. Matches are returned in
// surface order (URL, Body, Headers, Query) then rule order; the same
// payload on two surfaces yields two matches.
func (s *Scanner) Scan(req Request) []Match {
	var matches []Match
	for _, surface := range []struct {
		source Source
		text   string
	}{
		{SourceURL, req.URL},
		{SourceBody, textBody(req.Body)},
		{SourceHeaders, serialize(req.Headers)},
		{SourceQuery, serialize(req.Query)},
	} {
		matches = append(matches, s.scanText(surface.source, surface.text)...)
	}
	return matches
}

func (s *Scanner) scanText(source Source, text string) []Match {
	if text == "" {
		return nil
	}
	var out []Match
	for _, rule := range s.rules {
		if rule.Pattern != nil && rule.Pattern.MatchString(text) {
			out = append(out, Match{Kind: rule.Kind, Source: source, Severity: rule.Severity})
		}
	}
	return out
}

func textBody(b []byte) string {
	if len(b) == 0 || !utf8.Valid(b) {
		return ""
	}
	return string(b)
}

// serialize renders a header or query map as JSON without HTML escaping so
// markup stays visible to the rules. Empty or unencodable maps yield "".
func serialize[M ~map[string][]string](m M) string {
	if len(m) == 0 {
		return ""
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// DefaultMaxBody bounds how much of a request body FromHTTP reads.
const DefaultMaxBody = 64 << 10

// FromHTTP extracts scan surfaces from r. At most maxBody bytes of a
// text-like body are read; the body is restored for downstream handlers.
func FromHTTP(r *http.Request, maxBody int64) Request {
	if r == nil {
		return Request{}
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}

	req := Request{Headers: r.Header}
	if r.URL != nil {
		req.Query = r.URL.Query()
		req.URL = r.URL.RequestURI()
	}
	if r.RequestURI != "" {
		req.URL = r.RequestURI
	}

	mt, ok := textMediaType(r.Header.Get("Content-Type"))
	if r.Body != nil && r.Body != http.NoBody && ok {
		head, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err == nil {
			req.Body = scannableBody(head, mt, int64(len(head)) == maxBody)
		}
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	}
	return req
}

// scannableBody prepares a declared-text body for the rules. A cut at the
// read limit may split the last rune, which is dropped; any other invalid
// sequence becomes U+FFFD so one bad byte cannot hide the rest. Form bodies
// are decoded and serialized the same way as the query string.
func scannableBody(head []byte, mediaType string, truncated bool) []byte {
	if truncated {
		head = trimPartialRune(head)
	}
	text := strings.ToValidUTF8(string(head), "\uFFFD")
	if mediaType == "application/x-www-form-urlencoded" {
		// ParseQuery keeps every pair it could decode alongside the error.
		if values, _ := url.ParseQuery(text); len(values) > 0 {
			return []byte(serialize(values))
		}
	}
	return []byte(text)
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

// textMediaType reports the parsed media type and whether it is text-like.
// A missing Content-Type counts as text.
func textMediaType(contentType string) (string, bool) {
	if contentType == "" {
		return "", true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	switch {
	case strings.HasPrefix(mt, "text/"),
		mt == "application/json",
		mt == "application/x-www-form-urlencoded",
		mt == "application/xml",
		strings.HasSuffix(mt, "+json"),
		strings.HasSuffix(mt, "+xml"):
		return mt, true
	}
	return mt, false
}

// Rank orders severities from LOW (1) to CRITICAL (4); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}
