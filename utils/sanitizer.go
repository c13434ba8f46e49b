package utils

import (
	"html"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// bodyPolicy allows only the links RenderPlainText produces
var bodyPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}()

var linkPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// RenderPlainText turns a stored plain-text body into HTML for display.
// Text is escaped as-is and bare http(s) URLs become links.
func RenderPlainText(s string) template.HTML {
	var b strings.Builder
	last := 0
	for _, loc := range linkPattern.FindAllStringIndex(s, -1) {
		start, end := loc[0], loc[1]
		for end > start && strings.ContainsRune(".,;:!?)", rune(s[end-1])) {
			end--
		}
		b.WriteString(html.EscapeString(s[last:start]))
		href := html.EscapeString(s[start:end])
		b.WriteString(`<a href="` + href + `">` + href + `</a>`)
		last = end
	}
	b.WriteString(html.EscapeString(s[last:]))

	return template.HTML(bodyPolicy.Sanitize(b.String()))
}

// NormalizeAddress lowercases and trims an email address for comparisons
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
