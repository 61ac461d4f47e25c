package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/samvad-hq/vancodes/pkg/table"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
	outputCSV   = "csv"
)

func validOutput(format string) bool {
	switch strings.ToLower(format) {
	case outputTable, outputJSON, outputYAML, outputCSV:
		return true
	}
	return false
}

// renderTable writes tbl to w in the requested format.
func renderTable(w io.Writer, format string, tbl *table.Table) error {
	switch strings.ToLower(format) {
	case outputJSON, outputYAML:
		return renderValue(w, format, rowsOrEmpty(tbl))
	case outputCSV:
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(tbl.Records()); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, rec := range tbl.Records() {
			fmt.Fprintln(tw, strings.Join(rec, "\t"))
		}
		return tw.Flush()
	}
}

// renderValue writes an arbitrary value; table and csv fall back to JSON.
func renderValue(w io.Writer, format string, v any) error {
	if strings.ToLower(format) == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("write yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func rowsOrEmpty(tbl *table.Table) []map[string]any {
	rows := tbl.Rows()
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}
