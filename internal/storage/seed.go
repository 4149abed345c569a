// seed.go - Bulk catalog loading from CSV (UTF-8 or Windows-1251) and XLSX files

package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/bosocmputer/invoice_resolver/internal/processor"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// header aliases -> field
var productColumns = map[string]string{
	"name": "name", "наименование": "name", "название": "name", "товар": "name",
	"code": "code", "код": "code", "артикул": "code",
	"unit": "unit", "measurename": "unit", "ед": "unit", "ед.изм": "unit", "ед. изм.": "unit", "единица": "unit",
	"price": "price", "цена": "price",
	"comment": "comment", "комментарий": "comment",
}

var supplierColumns = map[string]string{
	"name": "name", "наименование": "name", "поставщик": "name",
	"inn": "inn", "инн": "inn",
	"kpp": "kpp", "кпп": "kpp",
	"address": "address", "адрес": "address",
	"phone": "phone", "телефон": "phone",
	"email": "email", "e-mail": "email", "почта": "email",
	"comment": "comment", "комментарий": "comment",
}

// Row is one data row keyed by canonical column name
type Row struct {
	Line   int
	Fields map[string]string
}

// ReadRows reads the first sheet of an .xlsx file or a CSV file with a header row
func ReadRows(path, encoding string, kind common.EntityKind) ([]Row, error) {
	columns := productColumns
	if kind == common.KindSupplier {
		columns = supplierColumns
	}

	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(path)
	default:
		records, err = readCSV(path, encoding)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: no header row", path)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		header[i] = columns[h]
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := Row{Line: i + 2, Fields: make(map[string]string, len(header))}
		for col, value := range rec {
			if col < len(header) && header[col] != "" {
				row.Fields[header[col]] = strings.TrimSpace(value)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readCSV(path, encoding string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
	case "cp1251", "windows-1251":
		r = transform.NewReader(f, charmap.Windows1251.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}

	br := bufio.NewReader(r)
	delimiter, err := sniffDelimiter(br)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return records, nil
}

// sniffDelimiter picks ';' when the header has more semicolons than commas
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	peek, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';', nil
	}
	return ',', nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

// SeedReport counts what a seeding run did
type SeedReport struct {
	Created int
	Updated int
	Skipped []error // *common.LineError per rejected row
}

// Seeder upserts canonical rows. It never touches alias tables.
type Seeder struct {
	repo *CatalogRepository
	log  *zap.Logger
}

func NewSeeder(repo *CatalogRepository, log *zap.Logger) *Seeder {
	return &Seeder{repo: repo, log: common.OrGlobal(log)}
}

// Seed loads rows of kind; malformed rows are skipped, store failures abort
func (s *Seeder) Seed(ctx context.Context, kind common.EntityKind, rows []Row) (SeedReport, error) {
	var report SeedReport
	for _, row := range rows {
		var created bool
		var err error
		switch kind {
		case common.KindProduct:
			var p *Product
			if p, err = productFromRow(row); err == nil {
				created, err = s.repo.UpsertProductByCode(ctx, p)
			}
		case common.KindSupplier:
			var sup *Supplier
			if sup, err = supplierFromRow(row); err == nil {
				created, err = s.repo.UpsertSupplierByTaxID(ctx, sup)
			}
		default:
			return report, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
		}

		lineErr := &common.LineError{Line: row.Line, Kind: kind, Err: err}
		switch {
		case err == nil && created:
			report.Created++
		case err == nil:
			report.Updated++
		case errors.Is(err, common.ErrStoreUnavailable):
			return report, lineErr
		default:
			s.log.Warn("skipping seed row", zap.Int("line", row.Line), zap.Error(err))
			report.Skipped = append(report.Skipped, lineErr)
		}
	}

	s.log.Info("catalog seeded",
		zap.String("kind", kind.String()),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

var errMissingName = errors.New("name is required")

func productFromRow(row Row) (*Product, error) {
	name := row.Fields["name"]
	if name == "" {
		return nil, errMissingName
	}
	p := &Product{
		Name:    name,
		Code:    optional(row.Fields["code"]),
		Unit:    processor.NormalizeUnit(row.Fields["unit"]),
		Comment: optional(row.Fields["comment"]),
	}
	if raw := strings.ReplaceAll(strings.ReplaceAll(row.Fields["price"], " ", ""), ",", "."); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q", row.Fields["price"])
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("negative price %s", price)
		}
		p.Price = decimal.NewNullDecimal(price.Round(2))
	}
	return p, nil
}

func supplierFromRow(row Row) (*Supplier, error) {
	name := row.Fields["name"]
	if name == "" {
		return nil, errMissingName
	}
	return &Supplier{
		Name:    name,
		INN:     optional(NormalizeTaxID(row.Fields["inn"])),
		KPP:     optional(row.Fields["kpp"]),
		Address: optional(row.Fields["address"]),
		Phone:   optional(row.Fields["phone"]),
		Email:   optional(row.Fields["email"]),
		Comment: optional(row.Fields["comment"]),
	}, nil
}
