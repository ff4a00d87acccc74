package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/features"
)

// PriceRow is one listing of a price dataset. Missing values are NaN.
type PriceRow struct {
	Price        float64
	PricePerArea float64
	Borough      string
}

func rowPrice(r PriceRow) float64        { return r.Price }
func rowPricePerArea(r PriceRow) float64 { return r.PricePerArea }

var (
	priceColumns        = []string{"price", "precio"}
	pricePerAreaColumns = []string{"price_per_area", "precio_m2", "precio_por_m2"}
	areaColumns         = []string{"metros_cuadrados", "dimensiones", "terreno", "area"}
	boroughColumns      = []string{"alcaldia", "alcaldía", "borough"}
)

var numberPattern = regexp.MustCompile(`-?[\d,]*\.?\d+`)

// LoadDataset reads a price dataset from a .csv, .json or .xlsx file
func LoadDataset(path string, usdToMXN float64) ([]PriceRow, error) {
	var (
		header []string
		rows   [][]string
		err    error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		header, rows, err = readCSV(path)
	case ".json":
		header, rows, err = readJSONRecords(path)
	case ".xlsx":
		header, rows, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	return parseTable(header, rows, usdToMXN)
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("dataset %s is empty", path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read dataset rows: %w", err)
	}
	return header, rows, nil
}

// readJSONRecords flattens an array of objects into a table. Columns are the
// sorted union of all keys.
func readJSONRecords(path string) ([]string, [][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset: %w", err)
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}

	seen := make(map[string]bool)
	var header []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(header))
		for j, col := range header {
			row[j] = jsonCell(rec[col])
		}
		rows[i] = row
	}
	return header, rows, nil
}

func jsonCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(val)
	}
}

func readXLSX(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("dataset %s is empty", path)
	}
	return all[0], all[1:], nil
}

// tableLayout records which header positions feed each row field
type tableLayout struct {
	price        int
	pricePerArea int
	area         int
	borough      int
	indicators   map[int]string
	order        []int
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func newTableLayout(header []string) (*tableLayout, error) {
	l := &tableLayout{
		price:        findColumn(header, priceColumns),
		pricePerArea: findColumn(header, pricePerAreaColumns),
		area:         findColumn(header, areaColumns),
		borough:      findColumn(header, boroughColumns),
		indicators:   make(map[int]string),
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if strings.HasPrefix(h, features.BoroughPrefix) {
			l.indicators[i] = config.CanonicalBorough(strings.TrimPrefix(h, features.BoroughPrefix))
			l.order = append(l.order, i)
		}
	}

	if l.price < 0 && l.pricePerArea < 0 {
		return nil, fmt.Errorf("dataset has neither a price nor a price per area column")
	}
	if l.pricePerArea < 0 && (l.price < 0 || l.area < 0) {
		return nil, fmt.Errorf("dataset has no price per area column and no area to derive it from")
	}
	return l, nil
}

func parseTable(header []string, rows [][]string, usdToMXN float64) ([]PriceRow, error) {
	layout, err := newTableLayout(header)
	if err != nil {
		return nil, err
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}

	out := make([]PriceRow, 0, len(rows))
	for _, row := range rows {
		if isBlank(row) {
			continue
		}

		price := math.NaN()
		if v, ok := ParsePrice(cell(row, layout.price), usdToMXN); ok {
			price = v
		}

		ppa := math.NaN()
		if layout.pricePerArea >= 0 {
			if v, ok := ParseNumber(cell(row, layout.pricePerArea)); ok {
				ppa = v
			}
		} else if area, ok := ParseNumber(cell(row, layout.area)); ok && area > 0 {
			ppa = price / area
		}

		out = append(out, PriceRow{
			Price:        price,
			PricePerArea: ppa,
			Borough:      layout.rowBorough(row, cell),
		})
	}
	return out, nil
}

func (l *tableLayout) rowBorough(row []string, cell func([]string, int) string) string {
	// Indicator columns are checked in header order
	for _, i := range l.order {
		if isTruthy(cell(row, i)) {
			return l.indicators[i]
		}
	}

	if l.borough >= 0 {
		return config.CanonicalBorough(strings.TrimSpace(cell(row, l.borough)))
	}
	return ""
}

// ParsePrice parses a numeric cell or a listing string such as
// "MN 19,200,000" or "USD 2,000,000". USD amounts are converted with the
// given rate. Only the first line is considered.
func ParsePrice(s string, usdToMXN float64) (float64, bool) {
	s = strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	if s == "" {
		return 0, false
	}

	rate := 1.0
	if strings.HasPrefix(strings.ToUpper(s), "USD") {
		rate = usdToMXN
	}
	v, ok := ParseNumber(s)
	if !ok {
		return 0, false
	}
	return v * rate, true
}

// ParseNumber extracts the first number of a cell, ignoring thousands
// separators and trailing units ("625 mt^2", "3 rec.")
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}

	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "true", "t", "yes":
		return true
	}
	return false
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
