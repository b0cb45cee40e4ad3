package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title> Sample Page </title>
  <meta name="description" content="A page about samples.">
  <script>var ignored = true;</script>
</head>
<body>
  <h1>Heading</h1>
  <p>Some   body
  text.</p>
  <a href="/relative">rel</a>
  <a href="https://other.test/abs#frag">abs</a>
  <a href="https://other.test/abs">dup</a>
  <a href="mailto:nobody@example.com">mail</a>
</body>
</html>`

func TestExtractHTML(t *testing.T) {
	t.Parallel()

	e := NewHTML()
	payload, err := e.Extract("https://example.com/page", "text/html", []byte(samplePage))
	require.NoError(t, err)

	doc, ok := payload.(*Document)
	require.True(t, ok)
	require.Equal(t, "Sample Page", doc.Title)
	require.Equal(t, "A page about samples.", doc.Description)
	require.Contains(t, doc.Text, "Some body text.")
	require.NotContains(t, doc.Text, "ignored")
	require.Equal(t, []string{
		"https://example.com/relative",
		"https://other.test/abs",
	}, doc.Links)
}

func TestExtractNonHTMLPassthrough(t *testing.T) {
	t.Parallel()

	e := NewHTML()
	payload, err := e.Extract("https://example.com/data", "application/json", []byte(`{"a":1}`))
	require.NoError(t, err)

	doc, ok := payload.(*Document)
	require.True(t, ok)
	require.Empty(t, doc.Title)
	require.Equal(t, `{"a":1}`, doc.Text)
}

func TestExtractLinkCap(t *testing.T) {
	t.Parallel()

	html := "<html><body>"
	for i := 0; i < 10; i++ {
		html += `<a href="/p` + string(rune('a'+i)) + `">x</a>`
	}
	html += "</body></html>"

	e := &HTML{MaxLinks: 3}
	payload, err := e.Extract("https://example.com", "text/html", []byte(html))
	require.NoError(t, err)

	doc := payload.(*Document)
	require.Len(t, doc.Links, 3)
}

func TestExtractEmptyBody(t *testing.T) {
	t.Parallel()

	e := NewHTML()
	payload, err := e.Extract("https://example.com", "text/html", nil)
	require.NoError(t, err)

	doc := payload.(*Document)
	require.Empty(t, doc.Title)
	require.Empty(t, doc.Links)
}
