// Package form renders the bare-bones HTML page used to try a model by hand.
package form

import (
	_ "embed"
	"strings"

	"github.com/valyala/fasttemplate"
)

var (
	//go:embed page.html
	pageHTML string
	//go:embed input.html
	inputHTML string
	//go:embed style.css
	styleCSS string

	pageTemplate  = fasttemplate.New(pageHTML, "{{", "}}")
	inputTemplate = fasttemplate.New(inputHTML, "{{", "}}")
)

// Render returns the demo page: one text input per field name, in order, and
// a script that POSTs the values to /predict as a JSON object keyed by field
// name. Field names are trusted configuration and are embedded unescaped.
func Render(title string, fieldNames []string) string {
	var inputs strings.Builder
	quoted := make([]string, len(fieldNames))
	for i, name := range fieldNames {
		inputs.WriteString(inputTemplate.ExecuteString(map[string]any{"name": name}))
		quoted[i] = "'" + name + "'"
	}
	return pageTemplate.ExecuteString(map[string]any{
		"title":  title,
		"css":    styleCSS,
		"inputs": inputs.String(),
		"fields": "[" + strings.Join(quoted, ",") + "]",
	})
}
