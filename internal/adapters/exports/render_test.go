package exports

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialcore/internal/core"
)

func sampleTables() core.ProfileTables {
	return core.ProfileTables{
		ProfileID:  "p1",
		MaterialID: "m1",
		Material:   "Maize silage",
		Owner:      "admin",
		Groups: []core.GroupTables{{
			AssignmentID: "a1",
			Group:        "Biochemical Composition",
			FractionsOf:  "Fresh Matter",
			Averages: core.Table{
				Title:   "Average",
				Columns: []string{"Average", "Standard deviation"},
				Rows: []core.TableRow{
					{ComponentID: "c1", Component: "Carbohydrates", Values: []string{"60.0", "0.5"}},
					{ComponentID: "c2", Component: "Proteins, crude", Values: []string{"40.0", "0.0"}},
				},
			},
			Distributions: []core.Table{{
				Title:   "Seasons",
				Columns: []string{"Summer", "Winter"},
				Rows: []core.TableRow{
					{ComponentID: "c1", Component: "Carbohydrates", Values: []string{"55.0", ""}},
				},
			}},
		}},
	}
}

func TestRenderCSVLongForm(t *testing.T) {
	payload, err := Render(FormatCSV, sampleTables())
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(payload))).ReadAll()
	require.NoError(t, err)

	require.Equal(t, csvHeader, records[0])
	require.Len(t, records, 1+4+1, "blank cells are skipped")
	assert.Equal(t, []string{"Maize silage", "admin", "Biochemical Composition", "Fresh Matter", "Average", "Carbohydrates", "Average", "60.0"}, records[1])
	assert.Equal(t, "Proteins, crude", records[3][5])
	assert.Equal(t, []string{"Maize silage", "admin", "Biochemical Composition", "Fresh Matter", "Seasons", "Carbohydrates", "Summer", "55.0"}, records[5])
}

func TestRenderCSVPrefersDisplayName(t *testing.T) {
	tables := sampleTables()
	tables.DisplayName = "Lab sample 3"
	payload, err := Render(FormatCSV, tables)
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(payload))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "Lab sample 3", records[1][1])
}

func TestRenderJSON(t *testing.T) {
	payload, err := Render(FormatJSON, sampleTables())
	require.NoError(t, err)
	var decoded core.ProfileTables
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, sampleTables(), decoded)
}

func TestFormats(t *testing.T) {
	_, err := Render("xlsx", sampleTables())
	require.ErrorContains(t, err, "unsupported export format")

	f, err := ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", f.ContentType())
	_, err = ParseFormat("CSV")
	require.Error(t, err)
	assert.Equal(t, "application/octet-stream", Format("bin").ContentType())

	assert.Equal(t, "exports/e1/profile-p1.json", ArtifactKey("e1", "p1", FormatJSON))
}
