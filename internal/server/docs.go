// ABOUTME: Serves the embedded Markdown API reference as HTML at /docs
// ABOUTME: Rendered once at startup with goldmark

package server

import (
	"bytes"
	_ "embed"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed docs/api.md
var apiReference []byte

const docsHeader = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>timechamp API</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
code, pre { background: #f4f4f4; border-radius: 3px; }
pre { padding: 0.75rem; overflow-x: auto; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ddd; padding: 0.25rem 0.5rem; text-align: left; }
</style>
</head>
<body>
`

const docsFooter = `</body>
</html>
`

// renderDocs converts the embedded API reference into a complete HTML page.
func renderDocs() ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var buf bytes.Buffer
	buf.WriteString(docsHeader)
	if err := md.Convert(apiReference, &buf); err != nil {
		return nil, err
	}
	buf.WriteString(docsFooter)
	return buf.Bytes(), nil
}

// handleDocs handles GET /docs.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.docs)
}
