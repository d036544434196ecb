// Package output renders command results on stdout as JSON or YAML.
package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Printer writes values in a fixed format.
type Printer struct {
	w      io.Writer
	format string
}

// NewPrinter creates a Printer for "json" or "yaml".
func NewPrinter(w io.Writer, format string) (*Printer, error) {
	switch format {
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return &Printer{w: w, format: format}, nil
}

// Print encodes v followed by a newline. YAML output goes through a JSON
// round trip so both formats honour the same json struct tags. Numbers keep
// their JSON text in both formats.
func (p *Printer) Print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	if p.format == "yaml" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		data, err = yaml.Marshal(yamlNumbers(generic))
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		_, err = p.w.Write(data)
		return err
	}

	data = append(data, '\n')
	_, err = p.w.Write(data)
	return err
}

// yamlNumbers replaces every json.Number with a scalar node carrying the
// number text, since yaml.v3 converts json.Number through float64.
func yamlNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(t.String(), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.String()}
	case []any:
		for i, e := range t {
			t[i] = yamlNumbers(e)
		}
	case map[string]any:
		for k, e := range t {
			t[k] = yamlNumbers(e)
		}
	}
	return v
}
