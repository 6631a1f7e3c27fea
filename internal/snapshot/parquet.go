package snapshot

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/chatidea/chatidea/internal/query"
)

type columnKind int

const (
	kindString columnKind = iota
	kindInt
	kindDouble
	kindBool
	kindTimestamp
)

type EncodeResult struct {
	Data     []byte
	RowCount int64
	Columns  []string
}

// EncodeResultToParquet writes a query result as a flat parquet file with one
// optional column per result column. Column types are inferred from the
// values; a column holding only NULLs is written as a string column.
func EncodeResultToParquet(table string, result query.Result) (EncodeResult, error) {
	if len(result.Columns) == 0 {
		return EncodeResult{}, fmt.Errorf("table %q has no columns", table)
	}

	kinds := make(map[string]columnKind, len(result.Columns))
	group := parquet.Group{}
	for i, column := range result.Columns {
		if _, exists := group[column]; exists {
			return EncodeResult{}, fmt.Errorf("table %q has duplicate column %q", table, column)
		}
		kind := inferKind(result.Rows, i)
		kinds[column] = kind
		group[column] = parquet.Optional(nodeFor(kind))
	}
	schema := parquet.NewSchema(table, group)

	// Group fields are ordered by name; leaf column indexes follow that order.
	ordered := make([]string, len(result.Columns))
	copy(ordered, result.Columns)
	sort.Strings(ordered)
	sourceIndex := make(map[string]int, len(result.Columns))
	for i, column := range result.Columns {
		sourceIndex[column] = i
	}

	rows := make([]parquet.Row, 0, len(result.Rows))
	for rowIndex, values := range result.Rows {
		row := make(parquet.Row, len(ordered))
		for columnIndex, column := range ordered {
			var raw any
			if i := sourceIndex[column]; i < len(values) {
				raw = values[i]
			}
			value, err := toValue(kinds[column], raw)
			if err != nil {
				return EncodeResult{}, fmt.Errorf("table %q row %d column %q: %w", table, rowIndex, column, err)
			}
			if value.IsNull() {
				row[columnIndex] = value.Level(0, 0, columnIndex)
			} else {
				row[columnIndex] = value.Level(0, 1, columnIndex)
			}
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:     buf.Bytes(),
		RowCount: int64(len(rows)),
		Columns:  ordered,
	}, nil
}

func inferKind(rows [][]any, index int) columnKind {
	seen := false
	kind := kindString
	for _, row := range rows {
		if index >= len(row) || row[index] == nil {
			continue
		}
		next := kindOf(row[index])
		switch {
		case !seen:
			kind, seen = next, true
		case kind == next:
		case (kind == kindInt && next == kindDouble) || (kind == kindDouble && next == kindInt):
			kind = kindDouble
		default:
			return kindString
		}
	}
	return kind
}

func kindOf(value any) columnKind {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return kindInt
	case float32, float64:
		return kindDouble
	case bool:
		return kindBool
	case time.Time:
		return kindTimestamp
	default:
		return kindString
	}
}

func nodeFor(kind columnKind) parquet.Node {
	switch kind {
	case kindInt:
		return parquet.Int(64)
	case kindDouble:
		return parquet.Leaf(parquet.DoubleType)
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	case kindTimestamp:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.String()
	}
}

func toValue(kind columnKind, raw any) (parquet.Value, error) {
	if raw == nil {
		return parquet.NullValue(), nil
	}
	switch kind {
	case kindInt:
		n, ok := asInt64(raw)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected integer, got %T", raw)
		}
		return parquet.Int64Value(n), nil
	case kindDouble:
		if f, ok := asFloat64(raw); ok {
			return parquet.DoubleValue(f), nil
		}
		return parquet.Value{}, fmt.Errorf("expected number, got %T", raw)
	case kindBool:
		b, ok := raw.(bool)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected bool, got %T", raw)
		}
		return parquet.BooleanValue(b), nil
	case kindTimestamp:
		ts, ok := raw.(time.Time)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected timestamp, got %T", raw)
		}
		return parquet.Int64Value(ts.UTC().UnixMicro()), nil
	default:
		return parquet.ByteArrayValue([]byte(asString(raw))), nil
	}
}

func asInt64(raw any) (int64, bool) {
	switch typed := raw.(type) {
	case int:
		return int64(typed), true
	case int8:
		return int64(typed), true
	case int16:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case uint8:
		return int64(typed), true
	case uint16:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	}
	return 0, false
}

func asFloat64(raw any) (float64, bool) {
	switch typed := raw.(type) {
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	}
	if n, ok := asInt64(raw); ok {
		return float64(n), true
	}
	return 0, false
}

func asString(raw any) string {
	switch typed := raw.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}
