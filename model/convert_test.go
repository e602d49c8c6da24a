package model

import (
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeValue(t *testing.T) {
	now := time.Date(2024, 5, 7, 16, 1, 0, 0, time.Local)
	tests := []struct {
		name    string
		field   *Field
		value   any
		want    any
		wantErr bool
	}{
		{"nil", &Field{Type: Int}, nil, nil, false},
		{"nil pointer", &Field{Type: Int}, (*int)(nil), nil, false},
		{"int widening", &Field{Type: Int}, int32(3), int64(3), false},
		{"uint to int", &Field{Type: Bigint}, uint8(3), int64(3), false},
		{"bytes to int", &Field{Type: Int}, []byte("42"), int64(42), false},
		{"bad int", &Field{Type: Int}, "abc", nil, true},
		{"bit from int", &Field{Type: Bit}, int64(1), true, false},
		{"bit from string", &Field{Type: Bit}, "false", false, false},
		{"decimal from bytes", &Field{Type: Decimal}, []byte("12.50"), 12.5, false},
		{"bad float", &Field{Type: Double}, "x", nil, true},
		{"time from string", &Field{Type: Datetime}, "2024-05-07 16:01:00", now, false},
		{"time with format", &Field{Type: Date, DateFormat: "dd/MM/yyyy"}, "07/05/2024", time.Date(2024, 5, 7, 0, 0, 0, 0, time.Local), false},
		{"bad time", &Field{Type: Datetime}, "yesterday", nil, true},
		{"time to text", &Field{Type: Varchar, DateFormat: "yyyy/MM/dd"}, now, "2024/05/07", false},
		{"int to text", &Field{Type: Varchar}, 12, "12", false},
		{"bytes to text", &Field{Type: Text}, []byte("abc"), "abc", false},
		{"binary untouched", &Field{Type: Blob}, []byte("abc"), []byte("abc"), false},
		{"pointer deref", &Field{Type: Varchar}, func() *string { s := "x"; return &s }(), "x", false},
		{"pass through", &Field{Type: Geometry}, struct{}{}, struct{}{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeValue(tt.field, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConvertValue))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssign(t *testing.T) {
	type target struct {
		I   int
		U   uint16
		F   float32
		B   bool
		S   string
		T   time.Time
		P   *int
		Raw []byte
		D   time.Duration
	}
	var dst target
	rv := reflect.ValueOf(&dst).Elem()

	require.NoError(t, Assign(rv.FieldByName("I"), "12", ""))
	require.NoError(t, Assign(rv.FieldByName("U"), int64(7), ""))
	require.NoError(t, Assign(rv.FieldByName("F"), []byte("1.5"), ""))
	require.NoError(t, Assign(rv.FieldByName("B"), int64(1), ""))
	require.NoError(t, Assign(rv.FieldByName("S"), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "yyyy-MM-dd'T'HH:mm"))
	require.NoError(t, Assign(rv.FieldByName("T"), "2024-01-02", "yyyy-MM-dd"))
	require.NoError(t, Assign(rv.FieldByName("P"), int64(9), ""))
	require.NoError(t, Assign(rv.FieldByName("Raw"), []byte("x"), ""))
	require.NoError(t, Assign(rv.FieldByName("D"), int64(time.Second), ""))

	assert.Equal(t, 12, dst.I)
	assert.Equal(t, uint16(7), dst.U)
	assert.Equal(t, float32(1.5), dst.F)
	assert.True(t, dst.B)
	assert.Equal(t, "2024-01-02T03:04", dst.S)
	assert.Equal(t, 2, dst.T.Day())
	assert.Equal(t, 9, *dst.P)
	assert.Equal(t, []byte("x"), dst.Raw)
	assert.Equal(t, time.Second, dst.D)

	require.NoError(t, Assign(rv.FieldByName("P"), nil, ""))
	assert.Nil(t, dst.P)
	assert.Error(t, Assign(rv.FieldByName("I"), "abc", ""))
}

func TestDateLayout(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"yyyy-MM-dd HH:mm:ss", "2006-01-02 15:04:05"},
		{"yyyy-MM-dd", "2006-01-02"},
		{"yy/M/d h:m:s a", "06/1/2 3:4:5 PM"},
		{"yyyy-MM-dd'T'HH:mm:ss.SSSXXX", "2006-01-02T15:04:05.000Z07:00"},
		{"EEE, dd MMM yyyy", "Mon, 02 Jan 2006"},
		{"''yyyy''", "'2006'"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, DateLayout(tt.pattern))
		})
	}

	now := time.Date(2024, 5, 7, 16, 1, 2, 0, time.UTC)
	assert.Equal(t, "2024-05-07 16:01:02", FormatTime(now, ""))

	parsed, err := ParseTime("2024-05-07T16:01:02Z", "yyyy-MM-dd", time.UTC)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}
