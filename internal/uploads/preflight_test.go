package uploads

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/utils"
)

func TestPreflight(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		kind    models.SourceKind
		size    int64
		wantErr bool
	}{
		{"excel ok", "plan.XLSX", models.SourceExcel, 10, false},
		{"legacy excel ok", "plan.xls", models.SourceExcel, 10, false},
		{"shr ok", "dump.txt", models.SourceSHR, 10, false},
		{"excel wrong extension", "plan.csv", models.SourceExcel, 10, true},
		{"shr wrong extension", "dump.xlsx", models.SourceSHR, 10, true},
		{"empty", "plan.xlsx", models.SourceExcel, 0, true},
		{"too large", "plan.xlsx", models.SourceExcel, 101 << 20, true},
		{"unknown kind", "plan.xlsx", models.SourceKind("csv"), 10, true},
		{"no name", " ", models.SourceExcel, 10, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Preflight(tc.file, tc.kind, tc.size, 0)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, utils.IsKind(err, utils.KindValidation))
		})
	}
}

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestProbeWorkbookCountsDataRows(t *testing.T) {
	buf := workbook(t, [][]any{
		{"Дата", "Оператор", "Тип БВС"},
		{"2024-09-01", "ООО Аэро", "Геоскан"},
		{"2024-09-02", "ООО Аэро", "Геоскан"},
	})

	summary, err := ProbeWorkbook(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sheet1"}, summary.Sheets)
	assert.Equal(t, 2, summary.DataRows)
}

func TestProbeWorkbookRejectsHeaderOnly(t *testing.T) {
	buf := workbook(t, [][]any{{"Дата", "Оператор"}})

	_, err := ProbeWorkbook(buf)
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
}

func TestProbeWorkbookRejectsGarbage(t *testing.T) {
	_, err := ProbeWorkbook(bytes.NewReader([]byte("definitely not a zip")))
	assert.Error(t, err)
}
