package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want Language
	}{
		{"", English},
		{"en", English},
		{"ENG", English},
		{" english ", English},
		{"id", Indonesian},
		{"ind", Indonesian},
		{"Indonesian", Indonesian},
		{"bahasa", Indonesian},
	}
	for _, tt := range tests {
		got, err := ParseLanguage(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLanguage("fr")
	assert.ErrorIs(t, err, ErrInvalidLanguage)
	assert.True(t, IsInputError(err))
}

func TestLanguageCodes(t *testing.T) {
	assert.Equal(t, "eng", English.TesseractCode())
	assert.Equal(t, "ind", Indonesian.TesseractCode())
	assert.Equal(t, "Indonesian", Indonesian.DisplayName())
}

func TestInputErrorsShareParent(t *testing.T) {
	for _, err := range []error{ErrNoFile, ErrUnsupportedType, ErrFileTooLarge, ErrInvalidLanguage} {
		assert.True(t, IsInputError(err), err.Error())
	}
	assert.False(t, IsInputError(errors.New("provider down")))
}

func TestStageError(t *testing.T) {
	cause := errors.New("timeout")
	err := fmt.Errorf("process: %w", &StageError{Stage: "ocr", File: "a.png", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ocr failed for a.png: timeout")

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ocr", se.Stage)
}

func TestTableDataColumns(t *testing.T) {
	td := TableData{{"a"}, {"a", "b", "c"}, {"a", "b"}}
	assert.Equal(t, 3, td.Columns())
	assert.Equal(t, 0, TableData(nil).Columns())
}
