// Package sheets mirrors workflow events to a Google Sheets ledger. The
// mirror is best-effort by design: every method is safe to call on a
// disabled mirror, and callers are expected to log and ignore failures.
package sheets

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

var headers = []interface{}{
	"Дата/Время",
	"user_id",
	"@username",
	"Метод",
	"ID чека",
	"Статус",
	"Начало подписки",
	"Окончание подписки",
	"Комментарий",
}

type Mirror struct {
	svc           *sheetsapi.Service
	spreadsheetID string
}

// New connects to the spreadsheet. Empty credentials or id return a disabled
// mirror rather than an error; the workflow must not depend on the ledger.
func New(ctx context.Context, credsJSON, spreadsheetID string) *Mirror {
	if credsJSON == "" || spreadsheetID == "" {
		log.Printf("sheets: credentials not configured, mirror disabled")
		return &Mirror{}
	}

	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsJSON([]byte(credsJSON)),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		log.Printf("sheets: failed to connect, mirror disabled: %v", err)
		return &Mirror{}
	}

	m := &Mirror{svc: svc, spreadsheetID: spreadsheetID}
	if err := m.ensureHeaders(ctx); err != nil {
		log.Printf("sheets: failed to verify headers: %v", err)
	}
	return m
}

func (m *Mirror) Enabled() bool {
	return m.svc != nil
}

func (m *Mirror) ensureHeaders(ctx context.Context) error {
	resp, err := m.svc.Spreadsheets.Values.Get(m.spreadsheetID, "A1:I1").Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "failed to read header row")
	}
	if len(resp.Values) > 0 && matches(resp.Values[0]) {
		return nil
	}
	_, err = m.svc.Spreadsheets.Values.Update(m.spreadsheetID, "A1:I1", &sheetsapi.ValueRange{
		Values: [][]interface{}{headers},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return errors.Wrap(err, "failed to write header row")
}

func matches(row []interface{}) bool {
	if len(row) < len(headers) {
		return false
	}
	for i, want := range headers {
		if fmt.Sprint(row[i]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// AppendCheckRow appends a payment-check row and returns its 1-based row
// index for later status updates.
func (m *Mirror) AppendCheckRow(ctx context.Context, userID int64, username, method, fileID string) (int64, error) {
	if !m.Enabled() {
		return 0, nil
	}
	if username == "" {
		username = "N/A"
	}
	row := []interface{}{
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		userID,
		username,
		method,
		fileID,
		"На проверке",
		"", "", "",
	}
	resp, err := m.svc.Spreadsheets.Values.Append(m.spreadsheetID, "A:I", &sheetsapi.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, errors.Wrap(err, "failed to append check row")
	}
	if resp.Updates == nil {
		return 0, errors.New("append response carries no updated range")
	}
	return parseRowIndex(resp.Updates.UpdatedRange)
}

// UpdateCheckStatus writes the review outcome into the status column and,
// when a window is supplied, the start/end columns of the given row.
func (m *Mirror) UpdateCheckStatus(ctx context.Context, row int64, status string, start, end *time.Time) error {
	if !m.Enabled() || row <= 0 {
		return nil
	}
	data := []*sheetsapi.ValueRange{
		{
			Range:  fmt.Sprintf("F%d", row),
			Values: [][]interface{}{{status}},
		},
	}
	if start != nil && end != nil {
		data = append(data,
			&sheetsapi.ValueRange{
				Range:  fmt.Sprintf("G%d", row),
				Values: [][]interface{}{{start.Format("2006-01-02")}},
			},
			&sheetsapi.ValueRange{
				Range:  fmt.Sprintf("H%d", row),
				Values: [][]interface{}{{end.Format("2006-01-02")}},
			},
		)
	}
	_, err := m.svc.Spreadsheets.Values.BatchUpdate(m.spreadsheetID, &sheetsapi.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	return errors.Wrap(err, "failed to update check status")
}

// AppendBookingRow appends a booking entry to the ledger.
func (m *Mirror) AppendBookingRow(ctx context.Context, userID int64, username, mode, slot, note string) error {
	if !m.Enabled() {
		return nil
	}
	if username == "" {
		username = "N/A"
	}
	row := []interface{}{
		time.Now().UTC().Format("2006-01-02 15:04:05"),
		userID,
		username,
		"Бронь " + mode,
		slot,
		"Создано",
		"", "",
		note,
	}
	_, err := m.svc.Spreadsheets.Values.Append(m.spreadsheetID, "A:I", &sheetsapi.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return errors.Wrap(err, "failed to append booking row")
}

// parseRowIndex extracts the row number from a range like "Лист1!A7:I7".
func parseRowIndex(updatedRange string) (int64, error) {
	rng := updatedRange
	if i := strings.Index(rng, "!"); i >= 0 {
		rng = rng[i+1:]
	}
	if i := strings.Index(rng, ":"); i >= 0 {
		rng = rng[:i]
	}
	digits := strings.TrimLeft(rng, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected updated range %q", updatedRange)
	}
	return row, nil
}
