package spreadsheet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/sheetscan/internal/models"
)

func TestWriteReadRoundTrip(t *testing.T) {
	rows := models.TableData{
		{"Name", "Age", "City"},
		{"John", "30", "NYC"},
		{"007", "1,200", "=SUM(A1)"},
		{"single cell"},
	}

	data, err := NewWriter().Write([]Sheet{{Name: "scan.png", Rows: rows}})
	require.NoError(t, err)
	require.NotEmpty(t, data)

	sheets, err := Read(data)
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, "scan.png", sheets[0].Name)
	assert.Equal(t, rows, sheets[0].Rows)
}

func TestWriteKeepsSheetOrder(t *testing.T) {
	in := []Sheet{
		{Name: "zeta", Rows: models.TableData{{"z"}}},
		{Name: "alpha", Rows: models.TableData{{"a"}}},
		{Name: "mid", Rows: models.TableData{{"m"}}},
	}

	data, err := NewWriter().Write(in)
	require.NoError(t, err)

	out, err := Read(data)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range in {
		assert.Equal(t, in[i].Name, out[i].Name)
		assert.Equal(t, in[i].Rows, out[i].Rows)
	}
}

func TestWriteRejectsBadNames(t *testing.T) {
	w := NewWriter()

	_, err := w.Write(nil)
	assert.ErrorIs(t, err, ErrNoSheets)

	_, err = w.Write([]Sheet{{Name: strings.Repeat("x", 32)}})
	assert.ErrorIs(t, err, ErrInvalidSheetName)

	_, err = w.Write([]Sheet{{Name: "a/b"}})
	assert.ErrorIs(t, err, ErrInvalidSheetName)

	_, err = w.Write([]Sheet{{Name: "Report"}, {Name: "REPORT"}})
	assert.ErrorIs(t, err, ErrDuplicateSheet)
}

func TestSheetNamer(t *testing.T) {
	n := NewSheetNamer()

	assert.Equal(t, "invoice.png", n.Next("invoice.png", 0))
	assert.Equal(t, "invoice.png (1)", n.Next("invoice.png", 1))
	assert.Equal(t, "INVOICE.PNG (2)", n.Next("INVOICE.PNG", 2))
	assert.Equal(t, "Sheet 4", n.Next("", 3))
	assert.Equal(t, "a_b_c_d_e_f_g_", n.Next("a:b\\c/d?e*f[g]", 4))
}

func TestSheetNamerTruncates(t *testing.T) {
	n := NewSheetNamer()
	long := "a-very-long-scanned-receipt-file-name.jpeg"

	first := n.Next(long, 0)
	second := n.Next(long, 1)

	assert.Equal(t, long[:25], first)
	assert.Equal(t, long[:25]+" (1)", second)
	for i := 0; i < 120; i++ {
		name := n.Next(long, i+2)
		assert.LessOrEqual(t, len(name), MaxSheetNameLength)
		assert.NoError(t, ValidateSheetName(name))
	}
}

func TestSheetNamerReserve(t *testing.T) {
	n := NewSheetNamer()
	n.Reserve(CombinedSheetName)

	assert.Equal(t, "all files combined (1)", n.Next("all files combined", 0))
}

func TestBatchSheets(t *testing.T) {
	files := []FileRows{
		{FileName: "a.png", Rows: models.TableData{{"x", "y"}}},
		{FileName: "a.png", Rows: models.TableData{{"line one"}, {"line two"}}},
	}

	sheets := BatchSheets(files)

	require.Len(t, sheets, 3)
	assert.Equal(t, "a.png", sheets[0].Name)
	assert.Equal(t, "a.png (1)", sheets[1].Name)
	assert.Equal(t, CombinedSheetName, sheets[2].Name)
	assert.Equal(t, models.TableData{
		{"File Name", "Content"},
		{"File: a.png", ""},
		{"a.png", "x", "y"},
		{"", ""},
		{"File: a.png", ""},
		{"a.png", "line one"},
		{"a.png", "line two"},
		{"", ""},
	}, sheets[2].Rows)

	_, err := NewWriter().Write(sheets)
	assert.NoError(t, err)
}
