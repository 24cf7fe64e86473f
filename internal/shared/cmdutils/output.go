package cmdutils

import (
	"encoding/json"
	"fmt"
	"io"
)

const logo = "🖋"

// PrintResponse prints a labelled block of model text.
func PrintResponse(w io.Writer, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(w, "\n%s inkforge\n%s\n\n", logo, text)
}

// PrintJSON writes v as indented JSON without HTML escaping, so Chinese
// text and markup stay readable.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
