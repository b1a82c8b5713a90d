package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"siterisk/domain/metrics"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "issues.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadEvents_CSV(t *testing.T) {
	path := writeCSV(t, `study_id,site_id,country,region,subject_id,high_risk,category,value
STUDY-1,1001,Germany,Europe,S-1,true,sae_pending,2
STUDY-1,1001,Germany,Europe,,,missing_pages,8
STUDY-1,2002,France,Europe,S-2,false,,
`)

	events, err := NewIssueLogReader(path).ReadEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "STUDY-1", string(events[0].StudyID))
	assert.Equal(t, "1001", string(events[0].SiteID))
	assert.True(t, events[0].HighRisk)
	assert.Equal(t, metrics.CategorySAEPending, events[0].Category)
	require.NotNil(t, events[0].Value)
	assert.Equal(t, 2, *events[0].Value)

	assert.Equal(t, metrics.CategoryMissingPages, events[1].Category)
	require.NotNil(t, events[1].Value)
	assert.Equal(t, 8, *events[1].Value)

	// Pure enrollment record: subject only, no category, no value.
	assert.Equal(t, "S-2", events[2].SubjectID)
	assert.Empty(t, string(events[2].Category))
	assert.Nil(t, events[2].Value)
}

func TestReadEvents_CSVHeaderCaseAndOrderInsensitive(t *testing.T) {
	path := writeCSV(t, `Site_ID,STUDY_ID,Category,Value
1001,STUDY-1,lab_issues,3
`)

	events, err := NewIssueLogReader(path).ReadEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, metrics.CategoryLabIssues, events[0].Category)
	require.NotNil(t, events[0].Value)
	assert.Equal(t, 3, *events[0].Value)
}

func TestReadEvents_CSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing required column", "country,category\nGermany,lab_issues\n"},
		{"blank identity", "study_id,site_id\nSTUDY-1,\n"},
		{"bad high_risk flag", "study_id,site_id,high_risk\nSTUDY-1,1001,maybe\n"},
		{"bad value", "study_id,site_id,value\nSTUDY-1,1001,lots\n"},
		{"header only", "study_id,site_id\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, tt.content)
			_, err := NewIssueLogReader(path).ReadEvents(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestReadEvents_MissingFile(t *testing.T) {
	_, err := NewIssueLogReader("/nonexistent/issues.csv").ReadEvents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadEvents_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"study_id", "site_id", "country", "region", "subject_id", "high_risk", "category", "value"},
		{"STUDY-1", "1001", "Germany", "Europe", "S-1", "true", "sae_pending", 4},
		{"STUDY-1", "1001", "Germany", "Europe", "", "", "max_days_outstanding", 21},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	events, err := NewIssueLogReader(path).ReadEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, metrics.CategorySAEPending, events[0].Category)
	require.NotNil(t, events[0].Value)
	assert.Equal(t, 4, *events[0].Value)
	assert.Equal(t, metrics.CategoryMaxDaysOutstanding, events[1].Category)
	require.NotNil(t, events[1].Value)
	assert.Equal(t, 21, *events[1].Value)
}
