package server

import _ "embed"

// docsPage is served at /docs unless the public directory provides its own docs.html.
//
//go:embed assets/docs.html
var docsPage []byte
