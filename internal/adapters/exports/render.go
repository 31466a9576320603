package exports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"materialcore/internal/core"
)

// Format names an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// DefaultFormats is used when a request names none.
var DefaultFormats = []Format{FormatJSON, FormatCSV}

// ContentType returns the MIME type stored with artifacts of f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat accepts the lower case format names.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// csvHeader is the long-form layout: one line per table cell.
var csvHeader = []string{"material", "profile", "group", "fractions_of", "table", "component", "column", "value"}

// Render encodes the tables of one profile.
func Render(format Format, tables core.ProfileTables) ([]byte, error) {
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(tables, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return payload, nil
	case FormatCSV:
		return renderCSV(tables)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func renderCSV(tables core.ProfileTables) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(csvHeader); err != nil {
		return nil, err
	}
	profile := tables.DisplayName
	if profile == "" {
		profile = tables.Owner
	}
	for _, g := range tables.Groups {
		for _, t := range append([]core.Table{g.Averages}, g.Distributions...) {
			for _, row := range t.Rows {
				for i, value := range row.Values {
					if value == "" || i >= len(t.Columns) {
						continue
					}
					record := []string{tables.Material, profile, g.Group, g.FractionsOf, t.Title, row.Component, t.Columns[i], value}
					if err := writer.Write(record); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
