package utils

import (
	"html/template"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_AddressPolicy_Check(t *testing.T) {
	policy := AddressPolicy{Domain: "Cuchi.vn", BlockedDomains: DefaultBlockedDomains}

	t.Run("should accept an organization address whatever its case", func(t *testing.T) {
		req := require.New(t)
		req.NoError(policy.Check("  Alice@CUCHI.vn "))
	})

	t.Run("should reject public providers before the domain check", func(t *testing.T) {
		req := require.New(t)
		req.ErrorIs(policy.Check("bob@gmail.com"), ErrPublicDomain)
	})

	t.Run("should reject addresses outside the organization", func(t *testing.T) {
		req := require.New(t)
		req.ErrorIs(policy.Check("carol@example.com"), ErrOutsideOrganization)
	})

	t.Run("should accept anything without an organization domain", func(t *testing.T) {
		req := require.New(t)
		req.NoError(AddressPolicy{}.Check("dave@example.com"))
		req.Equal("", AddressPolicy{}.Suffix())
	})

	t.Run("should strip a leading at sign from the domain", func(t *testing.T) {
		req := require.New(t)
		req.Equal("@cuchi.vn", AddressPolicy{Domain: "@cuchi.vn"}.Suffix())
	})
}

func Test_RenderPlainText(t *testing.T) {
	t.Run("should keep text in angle brackets", func(t *testing.T) {
		req := require.New(t)

		// Given bodies that only look like markup
		// When they are rendered
		// Then every character survives, escaped
		req.Equal(template.HTML("Contact me at &lt;alice@org.vn&gt; tomorrow"), RenderPlainText("Contact me at <alice@org.vn> tomorrow"))
		req.Equal(template.HTML("if a&lt;b then c&gt;d"), RenderPlainText("if a<b then c>d"))
	})

	t.Run("should not execute markup", func(t *testing.T) {
		req := require.New(t)
		out := string(RenderPlainText("<script>alert(1)</script>"))
		req.NotContains(out, "<script>")
		req.Contains(out, "&lt;script&gt;alert(1)&lt;/script&gt;")
	})

	t.Run("should link bare urls", func(t *testing.T) {
		req := require.New(t)
		out := string(RenderPlainText("see https://org.vn/a?b=1&c=2."))
		req.Contains(out, `href="https://org.vn/a?b=1&amp;c=2"`)
		req.Contains(out, `rel="nofollow`)
		req.True(strings.HasSuffix(out, "</a>."))
	})
}
