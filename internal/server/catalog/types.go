package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ColumnType is the semantic type of a column, independent of the store.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInteger   ColumnType = "integer"
	TypeNumber    ColumnType = "number"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeDate      ColumnType = "date"
	TypeUUID      ColumnType = "uuid"
	TypeJSON      ColumnType = "json"
)

const dateLayout = "2006-01-02"

func (t ColumnType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeTimestamp, TypeDate, TypeUUID, TypeJSON:
		return true
	}
	return false
}

// Coerce checks v against the type and returns the value to bind as a query
// argument. v must not be nil.
func (t ColumnType) Coerce(v any) (any, error) {
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, errors.New("expected a string")

	case TypeInteger:
		return toInt64(v)

	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, errors.New("expected a number")
			}
			return f, nil
		}
		i, err := toInt64(v)
		if err != nil {
			return nil, errors.New("expected a number")
		}
		return float64(i), nil

	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, errors.New("expected a boolean")

	case TypeTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, errors.New("expected an RFC 3339 timestamp")
			}
			return ts.UTC(), nil
		}
		return nil, errors.New("expected an RFC 3339 timestamp")

	case TypeDate:
		switch x := v.(type) {
		case time.Time:
			return x.Format(dateLayout), nil
		case string:
			d, err := time.Parse(dateLayout, x)
			if err != nil {
				return nil, errors.New("expected a date as YYYY-MM-DD")
			}
			return d.Format(dateLayout), nil
		}
		return nil, errors.New("expected a date as YYYY-MM-DD")

	case TypeUUID:
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("expected a uuid string")
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.New("expected a uuid string")
		}
		return id.String(), nil

	case TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.New("value is not representable as JSON")
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("unsupported column type %q", t)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, errors.New("expected an integer")
		}
		return int64(n), nil
	case json.Number:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return 0, errors.New("expected an integer")
		}
		return i, nil
	}
	return 0, errors.New("expected an integer")
}

// FromStore converts a value scanned from the store into its wire shape.
// Unknown representations are passed through.
func (t ColumnType) FromStore(v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch t {
	case TypeBoolean:
		switch x := v.(type) {
		case int64:
			return x != 0
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b
			}
		}
	case TypeInteger:
		if s, ok := v.(string); ok {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
		}
	case TypeNumber:
		switch x := v.(type) {
		case int64:
			return float64(x)
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		}
	case TypeDate:
		if ts, ok := v.(time.Time); ok {
			return ts.Format(dateLayout)
		}
	case TypeTimestamp:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC()
		}
	case TypeJSON:
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	}
	return v
}
