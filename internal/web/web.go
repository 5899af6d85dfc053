// Package web holds the static application form served on GET.
package web

import _ "embed"

//go:embed index.html
var indexHTML []byte

// IndexHTML returns the application form page.
func IndexHTML() []byte {
	return indexHTML
}
