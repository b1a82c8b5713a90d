package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"siterisk/domain/core"
	"siterisk/domain/metrics"
)

// IssueLogReader reads raw issue-log rows from an xlsx or csv export of a
// source clinical system into RawEvent records. It is a thin connector: all
// aggregation semantics live downstream.
type IssueLogReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewIssueLogReader creates a reader for the given file, dispatching on the
// extension.
func NewIssueLogReader(filePath string) *IssueLogReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &IssueLogReader{filePath: filePath, fileType: fileType}
}

// ReadEvents implements ports.EventSource.
func (r *IssueLogReader) ReadEvents(ctx context.Context) ([]metrics.RawEvent, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("issue log file not found: %s", r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("issue log must have a header row and at least one data row")
	}

	return parseRows(rows)
}

func (r *IssueLogReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, fmt.Errorf("failed to read Sheet1: %w", err)
	}
	return rows, nil
}

func (r *IssueLogReader) readCSVRows() ([][]string, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV rows: %w", err)
	}
	return rows, nil
}

// Expected header columns, matched case-insensitively in any order.
const (
	colStudyID   = "study_id"
	colSiteID    = "site_id"
	colCountry   = "country"
	colRegion    = "region"
	colSubjectID = "subject_id"
	colHighRisk  = "high_risk"
	colCategory  = "category"
	colValue     = "value"
)

func parseRows(rows [][]string) ([]metrics.RawEvent, error) {
	header := make(map[string]int)
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colStudyID, colSiteID} {
		if _, ok := header[required]; !ok {
			return nil, fmt.Errorf("issue log is missing required column %q", required)
		}
	}

	cell := func(row []string, name string) string {
		idx, ok := header[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	events := make([]metrics.RawEvent, 0, len(rows)-1)
	for n, row := range rows[1:] {
		ev := metrics.RawEvent{
			StudyID:   core.StudyID(cell(row, colStudyID)),
			SiteID:    core.SiteID(cell(row, colSiteID)),
			Country:   cell(row, colCountry),
			Region:    cell(row, colRegion),
			SubjectID: cell(row, colSubjectID),
			Category:  metrics.IssueCategory(cell(row, colCategory)),
		}
		if ev.StudyID == "" || ev.SiteID == "" {
			return nil, fmt.Errorf("row %d: study_id and site_id are required", n+2)
		}
		if v := cell(row, colHighRisk); v != "" {
			highRisk, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid high_risk value %q", n+2, v)
			}
			ev.HighRisk = highRisk
		}
		if v := cell(row, colValue); v != "" {
			value, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid value %q", n+2, v)
			}
			ev.Value = &value
		}
		events = append(events, ev)
	}
	return events, nil
}
