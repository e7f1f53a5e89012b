package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const defaultWorksheet = "Sheet1"

type sheetClient interface {
	SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	AddSheet(ctx context.Context, spreadsheetID, title string) error
	Append(ctx context.Context, spreadsheetID, a1Range string, rows [][]interface{}) error
}

type sheetsAPI struct {
	svc *sheets.Service
}

func (a sheetsAPI) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	spreadsheet, err := a.svc.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(spreadsheet.Sheets))
	for _, sheet := range spreadsheet.Sheets {
		if sheet == nil || sheet.Properties == nil {
			continue
		}
		titles = append(titles, sheet.Properties.Title)
	}
	return titles, nil
}

func (a sheetsAPI) AddSheet(ctx context.Context, spreadsheetID, title string) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	_, err := a.svc.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}

func (a sheetsAPI) Append(ctx context.Context, spreadsheetID, a1Range string, rows [][]interface{}) error {
	_, err := a.svc.Spreadsheets.Values.Append(spreadsheetID, a1Range, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// SheetsConfig points the exporter at one worksheet.
type SheetsConfig struct {
	SpreadsheetID   string
	Worksheet       string
	CredentialsFile string
}

// SheetsExporter appends profile rows to a Google Sheets worksheet.
type SheetsExporter struct {
	client        sheetClient
	spreadsheetID string
	worksheet     string
	logger        *zap.Logger

	mu      sync.Mutex
	ensured bool
}

// NewSheetsExporter authenticates with a service account credentials file.
func NewSheetsExporter(ctx context.Context, cfg SheetsConfig, logger *zap.Logger) (*SheetsExporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	if strings.TrimSpace(cfg.CredentialsFile) == "" {
		return nil, errors.New("sheets credentials file is required")
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return newSheetsExporter(sheetsAPI{svc: svc}, cfg, logger), nil
}

func newSheetsExporter(client sheetClient, cfg SheetsConfig, logger *zap.Logger) *SheetsExporter {
	worksheet := strings.TrimSpace(cfg.Worksheet)
	if worksheet == "" {
		worksheet = defaultWorksheet
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SheetsExporter{
		client:        client,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		worksheet:     worksheet,
		logger:        logger,
	}
}

// AppendRow writes one row, creating the worksheet with a header row on first use.
func (e *SheetsExporter) AppendRow(ctx context.Context, columns []string) error {
	if len(columns) != ColumnCount {
		return fmt.Errorf("expected %d columns, got %d", ColumnCount, len(columns))
	}

	if err := e.ensureWorksheet(ctx); err != nil {
		return err
	}

	if err := e.client.Append(ctx, e.spreadsheetID, a1Range(e.worksheet), [][]interface{}{toCells(columns)}); err != nil {
		return fmt.Errorf("append row to %s: %w", e.worksheet, err)
	}

	return nil
}

func (e *SheetsExporter) ensureWorksheet(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ensured {
		return nil
	}

	titles, err := e.client.SheetTitles(ctx, e.spreadsheetID)
	if err != nil {
		return fmt.Errorf("read spreadsheet %s: %w", e.spreadsheetID, err)
	}

	for _, title := range titles {
		if title == e.worksheet {
			e.ensured = true
			return nil
		}
	}

	if err := e.client.AddSheet(ctx, e.spreadsheetID, e.worksheet); err != nil {
		return fmt.Errorf("create worksheet %s: %w", e.worksheet, err)
	}
	if err := e.client.Append(ctx, e.spreadsheetID, a1Range(e.worksheet), [][]interface{}{toCells(Header)}); err != nil {
		return fmt.Errorf("write header to %s: %w", e.worksheet, err)
	}

	e.logger.Info("created export worksheet", zap.String("worksheet", e.worksheet))
	e.ensured = true
	return nil
}

func a1Range(worksheet string) string {
	return "'" + strings.ReplaceAll(worksheet, "'", "''") + "'!A1"
}

func toCells(columns []string) []interface{} {
	cells := make([]interface{}, len(columns))
	for i, col := range columns {
		cells[i] = col
	}
	return cells
}
