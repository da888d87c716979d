package cli

import (
	"encoding/json"
	"io"
)

// Response is the JSON envelope of every command's output.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type formatter struct {
	format string
	writer io.Writer
}

func newFormatter(opts *RootOptions, w io.Writer) *formatter {
	return &formatter{format: opts.Format, writer: w}
}

// emit writes data as JSON, or calls text for the human-readable form.
func (f *formatter) emit(data any, text func(w io.Writer)) error {
	if f.format == "json" {
		return json.NewEncoder(f.writer).Encode(Response{Status: "ok", Data: data})
	}
	text(f.writer)
	return nil
}
