// Package export writes record lists to Excel workbooks.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"messbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const dateLayout = "02.01.2006 15:04"

var columns = []struct {
	title string
	width float64
	value func(r *models.Record) any
}{
	{"Created", 18, func(r *models.Record) any { return r.CreatedAt.Format(dateLayout) }},
	{"Status", 12, func(r *models.Record) any { return string(r.Status) }},
	{"Name", 22, func(r *models.Record) any { return r.Name }},
	{"Phone", 16, func(r *models.Record) any { return r.Phone }},
	{"Email", 24, func(r *models.Record) any { return r.Email }},
	{"Mess", 20, func(r *models.Record) any { return r.TargetRef }},
	{"Room", 14, func(r *models.Record) any { return r.UnitRef }},
	{"Message", 40, func(r *models.Record) any { return r.Message }},
	{"Details", 30, func(r *models.Record) any { return details(r.Details) }},
	{"Remark", 30, func(r *models.Record) any { return r.Remark }},
	{"Responded", 18, func(r *models.Record) any {
		if r.RespondedAt == nil {
			return ""
		}
		return r.RespondedAt.Format(dateLayout)
	}},
	{"ID", 38, func(r *models.Record) any { return r.ID }},
}

var sheetNames = map[models.Kind]string{
	models.KindBooking:      "Bookings",
	models.KindClaim:        "Claims",
	models.KindInquiry:      "Inquiries",
	models.KindRegistration: "Registrations",
	models.KindFeedback:     "Feedback",
}

// SheetName is the worksheet title for kind.
func SheetName(kind models.Kind) string {
	if name, ok := sheetNames[kind]; ok {
		return name
	}
	return "Records"
}

// FileName suggests a download name for an export made at ts.
func FileName(kind models.Kind, ts time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", kind, ts.Format("2006-01-02_1504"))
}

// Records writes recs as one worksheet. Records are written as given; the
// caller is responsible for redaction.
func Records(w io.Writer, kind models.Kind, recs []*models.Record, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := SheetName(kind)
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(len(columns))

	// Заголовок
	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("%s: %d, %s", sheet, len(recs), generatedAt.Format(dateLayout)))
	_ = f.MergeCell(sheet, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, c := range columns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetCellValue(sheet, col+"2", c.title)
		_ = f.SetColWidth(sheet, col, col, c.width)
	}
	_ = f.SetCellStyle(sheet, "A2", lastCol+"2", headerStyle)

	pending, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFF2CC"}, Pattern: 1},
	})
	for i, r := range recs {
		row := i + 3
		for j, c := range columns {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := f.SetCellValue(sheet, cell, c.value(r)); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
		if r.Status == models.StatusPending {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(columns), row)
			_ = f.SetCellStyle(sheet, first, last, pending)
		}
	}
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 2, TopLeftCell: "A3", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func details(d map[string]string) string {
	if len(d) == 0 {
		return ""
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+d[k])
	}
	return strings.Join(parts, "; ")
}
