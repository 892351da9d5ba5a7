package attendee

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ExportFilter narrows an export. Nil fields do not filter.
type ExportFilter struct {
	BagsChecked *bool
	Attendance  *bool
	Diet        *Diet
}

// ExportRow is one attendee line of an export.
type ExportRow struct {
	Name         string
	Email        string
	BagsChecked  bool
	Attendance   bool
	ReceivedFood bool
	Diet         string
	Allergens    string
	ScanCount    int64
	UUID         string
}

// ExportHeader is the CSV header row.
var ExportHeader = []string{
	"name", "email", "bags_checked", "attendance", "received_food",
	"diet", "allergens", "scan_count", "nfc_link",
}

const exportBase = `
	FROM users u
	LEFT JOIN profiles p ON p.user_id = u.id
	LEFT JOIN nfc_links n ON n.user_id = u.id
	WHERE u.role = 'user' AND u.approval_status = 'approved'`

func (f ExportFilter) where() (string, []any) {
	var b strings.Builder
	var args []any
	if f.BagsChecked != nil {
		b.WriteString(" AND p.bags_checked = ?")
		args = append(args, boolToInt(*f.BagsChecked))
	}
	if f.Attendance != nil {
		b.WriteString(" AND p.attendance = ?")
		args = append(args, boolToInt(*f.Attendance))
	}
	if f.Diet != nil {
		b.WriteString(" AND p.diet = ?")
		args = append(args, string(*f.Diet))
	}
	return b.String(), args
}

// Export returns approved attendees with the user role matching f, oldest
// first.
func (d *Directory) Export(ctx context.Context, f ExportFilter) ([]ExportRow, error) {
	clause, args := f.where()

	rows, err := d.db.QueryContext(ctx,
		`SELECT u.name, u.email,
		        COALESCE(p.bags_checked, 0), COALESCE(p.attendance, 0), COALESCE(p.received_food, 0),
		        COALESCE(p.diet, ''), COALESCE(p.allergens, ''),
		        COALESCE(n.scan_count, 0), n.uuid`+exportBase+clause+`
		 ORDER BY u.created_at ASC, u.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("exporting attendees: %w", err)
	}
	defer rows.Close()

	out := []ExportRow{}
	for rows.Next() {
		var r ExportRow
		var bags, attendance, food int
		var id sql.NullString
		if err := rows.Scan(&r.Name, &r.Email, &bags, &attendance, &food,
			&r.Diet, &r.Allergens, &r.ScanCount, &id); err != nil {
			return nil, fmt.Errorf("scanning export row: %w", err)
		}
		r.BagsChecked = bags != 0
		r.Attendance = attendance != 0
		r.ReceivedFood = food != 0
		r.UUID = id.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating export rows: %w", err)
	}
	return out, nil
}

// ExportCounts returns the number of exportable attendees and how many of
// them match f.
func (d *Directory) ExportCounts(ctx context.Context, f ExportFilter) (total, filtered int, err error) {
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*)"+exportBase).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("counting attendees: %w", err)
	}

	clause, args := f.where()
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*)"+exportBase+clause, args...).Scan(&filtered); err != nil {
		return 0, 0, fmt.Errorf("counting filtered attendees: %w", err)
	}
	return total, filtered, nil
}

// WriteCSV writes rows as CSV with a header. Links point at
// <baseURL>/nfc/<uuid>; attendees without a link get N/A.
func WriteCSV(w io.Writer, rows []ExportRow, baseURL string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	base := strings.TrimRight(baseURL, "/")
	for _, r := range rows {
		link := "N/A"
		if r.UUID != "" {
			link = base + "/nfc/" + r.UUID
		}
		record := []string{
			r.Name, r.Email,
			yesNo(r.BagsChecked), yesNo(r.Attendance), yesNo(r.ReceivedFood),
			r.Diet, r.Allergens,
			strconv.FormatInt(r.ScanCount, 10),
			link,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}
