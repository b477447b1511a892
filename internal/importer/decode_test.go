package importer

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDecodeRowsCSV(t *testing.T) {
	csv := "\xEF\xBB\xBFfirst,last,email,cards,bluetooth,enabled,activeDate,custom.dept\n" +
		"Ada,Lovelace,ada@example.com,\"100,200\",2,yes,2026-01-15,R&D\n" +
		",,,,,,,\n" +
		"Grace,Hopper,grace@example.com\n"

	rows, err := DecodeRows("people.csv", []byte(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2, "blank record skipped")

	ada := rows[0]
	assert.Equal(t, "Ada", ada.First)
	assert.Equal(t, "100,200", ada.Cards)
	assert.Equal(t, 2, ada.Bluetooth)
	assert.True(t, ada.Enabled)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), ada.ActiveDate)
	assert.Equal(t, "R&D", ada.Extra["custom.dept"])
	assert.Equal(t, map[string]string{"dept": "R&D"}, ada.customFields())

	grace := rows[1]
	assert.Equal(t, "Grace", grace.First)
	assert.Empty(t, grace.Cards, "short record padded with empty cells")
	assert.False(t, grace.Enabled)
}

func TestDecodeRowsXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"first", "last", "email", "mobile"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Ada", "Lovelace", "ada@example.com", 1}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := DecodeRows("people.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0].First)
	assert.Equal(t, "ada@example.com", rows[0].Email)
	assert.Equal(t, 1, rows[0].Mobile)
}

func TestDecodeRowsUnsupportedExtension(t *testing.T) {
	_, err := DecodeRows("people.txt", []byte("first,last\nAda,Lovelace\n"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeRowsEmptyCSV(t *testing.T) {
	rows, err := DecodeRows("people.csv", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecodeRowsInvalidUTF8(t *testing.T) {
	csv := "first,last,email\nAd\xffa,Lovelace,ada@example.com\n"

	rows, err := DecodeRows("people.csv", []byte(csv))
	require.NoError(t, err, "mis-encoded bytes must not break decoding")
	require.Len(t, rows, 1)
	assert.Equal(t, "Ad�a", rows[0].First)
}

func TestRowKey(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want string
	}{
		{"person id wins", Row{PersonID: "p1", Email: "Ada@Example.com"}, "id:p1"},
		{"email lowercased", Row{Email: "Ada@Example.com"}, "email:ada@example.com"},
		{"no identity", Row{First: "Ada"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.row.key())
		})
	}
}
