// Package features turns a PropertyRecord into the numeric vector a trained
// model expects, positioned exactly as the model's column schema.
package features

import (
	"fmt"
	"strings"

	"github.com/bc144/fennec-prediccion/internal/models"
)

// BoroughPrefix prefixes every one-hot borough indicator column
const BoroughPrefix = "alcaldia_"

// ColumnSchema is the ordered list of columns a model and scaler were fit on
type ColumnSchema struct {
	columns  []string
	index    map[string]int
	numeric  []int
	boroughs []int
}

// NewColumnSchema validates the column list. Duplicate or empty names are
// configuration errors, as is a schema without any borough indicator.
func NewColumnSchema(columns []string) (*ColumnSchema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("column schema is empty")
	}

	s := &ColumnSchema{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if col == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := s.index[col]; dup {
			return nil, fmt.Errorf("duplicate column %q", col)
		}
		s.index[col] = i

		if strings.HasPrefix(col, BoroughPrefix) {
			s.boroughs = append(s.boroughs, i)
		} else {
			s.numeric = append(s.numeric, i)
		}
	}
	if len(s.boroughs) == 0 {
		return nil, fmt.Errorf("column schema has no %s* indicator columns", BoroughPrefix)
	}

	// Every numeric column must be something a PropertyRecord can supply
	var probe models.PropertyRecord
	for _, i := range s.numeric {
		if _, ok := probe.Feature(s.columns[i]); !ok {
			return nil, fmt.Errorf("numeric column %q is not a known property feature", s.columns[i])
		}
	}
	return s, nil
}

// Len returns the number of columns
func (s *ColumnSchema) Len() int {
	return len(s.columns)
}

// Columns returns a copy of the column names in order
func (s *ColumnSchema) Columns() []string {
	return append([]string(nil), s.columns...)
}

// NumericColumns returns the base feature columns in schema order
func (s *ColumnSchema) NumericColumns() []string {
	out := make([]string, len(s.numeric))
	for i, idx := range s.numeric {
		out[i] = s.columns[idx]
	}
	return out
}

// Boroughs returns the borough names with an indicator column, in schema order
func (s *ColumnSchema) Boroughs() []string {
	out := make([]string, len(s.boroughs))
	for i, idx := range s.boroughs {
		out[i] = strings.TrimPrefix(s.columns[idx], BoroughPrefix)
	}
	return out
}

// IndexOf returns the position of a column
func (s *ColumnSchema) IndexOf(column string) (int, bool) {
	i, ok := s.index[column]
	return i, ok
}

// BoroughColumn builds the indicator column name for a borough
func BoroughColumn(borough string) string {
	return BoroughPrefix + borough
}
