package catalog

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnType_Coerce(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		typ     ColumnType
		in      any
		want    any
		wantErr bool
	}{
		{TypeString, "x", "x", false},
		{TypeString, 1.0, nil, true},
		{TypeInteger, 42.0, int64(42), false},
		{TypeInteger, 42.5, nil, true},
		{TypeInteger, json.Number("7"), int64(7), false},
		{TypeInteger, math.Pow(2, 63), nil, true},
		{TypeInteger, -math.Pow(2, 63), int64(math.MinInt64), false},
		{TypeInteger, math.Pow(2, 62), int64(1 << 62), false},
		{TypeInteger, math.NaN(), nil, true},
		{TypeInteger, "7", nil, true},
		{TypeNumber, 1.5, 1.5, false},
		{TypeNumber, 3, 3.0, false},
		{TypeNumber, "1.5", nil, true},
		{TypeBoolean, true, true, false},
		{TypeBoolean, "true", nil, true},
		{TypeTimestamp, "2024-03-01T10:00:00Z", ts, false},
		{TypeTimestamp, "2024-03-01T11:00:00+01:00", ts, false},
		{TypeTimestamp, "yesterday", nil, true},
		{TypeDate, "2024-03-01", "2024-03-01", false},
		{TypeDate, ts, "2024-03-01", false},
		{TypeDate, "01/03/2024", nil, true},
		{TypeUUID, "6F9619FF-8B86-D011-B42D-00C04FC964FF", "6f9619ff-8b86-d011-b42d-00c04fc964ff", false},
		{TypeUUID, "nope", nil, true},
		{TypeJSON, map[string]any{"a": 1.0}, `{"a":1}`, false},
		{TypeJSON, []any{"x"}, `["x"]`, false},
	}
	for _, tt := range tests {
		got, err := tt.typ.Coerce(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%s %v", tt.typ, tt.in)
			continue
		}
		require.NoError(t, err, "%s %v", tt.typ, tt.in)
		assert.Equal(t, tt.want, got, "%s %v", tt.typ, tt.in)
	}
}

func TestColumnType_FromStore(t *testing.T) {
	assert.Nil(t, TypeString.FromStore(nil))
	assert.Equal(t, "abc", TypeString.FromStore([]byte("abc")))
	assert.Equal(t, true, TypeBoolean.FromStore(int64(1)))
	assert.Equal(t, false, TypeBoolean.FromStore(int64(0)))
	assert.Equal(t, 2.0, TypeNumber.FromStore(int64(2)))
	assert.Equal(t, int64(5), TypeInteger.FromStore("5"))
	assert.Equal(t, "2024-03-01", TypeDate.FromStore(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, map[string]any{"a": 1.0}, TypeJSON.FromStore(`{"a":1}`))
	assert.Equal(t, []any{"x"}, TypeJSON.FromStore([]byte(`["x"]`)))
}
