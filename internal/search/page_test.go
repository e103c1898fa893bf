package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageMarkdown(t *testing.T) {
	doc := `<!doctype html>
<html>
<head><title>  Release   Notes </title><style>body { color: red }</style></head>
<body>
  <nav><a href="/">Home</a></nav>
  <h1>Hello</h1>
  <p>First <b>bold</b> para.</p>
  <ul><li>one</li><li>two</li></ul>
  <script>var tracking = true;</script>
  <h3>Details</h3>
  <div>Last<br>line</div>
  <footer>copyright</footer>
</body>
</html>`

	md, err := PageMarkdown([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "# Release Notes\n\n# Hello\n\nFirst bold para.\n\n- one\n\n- two\n\n### Details\n\nLast\n\nline", md)
}

func TestPageMarkdownWithoutTitle(t *testing.T) {
	md, err := PageMarkdown([]byte("<p>just text</p>"))
	require.NoError(t, err)
	assert.Equal(t, "just text", md)
}
