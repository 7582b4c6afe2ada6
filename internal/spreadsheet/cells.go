package spreadsheet

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/sheetscan/internal/models"
)

// MaxCellLength is the XLSX limit on characters per cell.
const MaxCellLength = 32767

// ErrUnstorableCell is returned by Write for a cell the workbook would not read back
// unchanged. CleanRows produces rows that never trigger it.
var ErrUnstorableCell = errors.New("cell cannot be stored unchanged")

// CheckCell reports why value would not survive a write and read.
func CheckCell(value string) error {
	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: invalid UTF-8", ErrUnstorableCell)
	}
	if n := utf8.RuneCountInString(value); n > MaxCellLength {
		return fmt.Errorf("%w: %d characters, limit %d", ErrUnstorableCell, n, MaxCellLength)
	}
	for _, r := range value {
		if !storable(r) {
			return fmt.Errorf("%w: character %U", ErrUnstorableCell, r)
		}
	}
	return nil
}

// storable is the XML 1.0 character range without carriage return, which readers
// fold into a line feed.
func storable(r rune) bool {
	switch {
	case r == '\t', r == '\n':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= utf8.MaxRune:
		return true
	}
	return false
}

// CleanCell makes value storable: invalid UTF-8 becomes U+FFFD, other unstorable
// characters become spaces, and the result is cut to MaxCellLength characters.
func CleanCell(value string) string {
	if CheckCell(value) == nil {
		return value
	}
	value = strings.ToValidUTF8(value, "�")
	value = strings.Map(func(r rune) rune {
		if storable(r) {
			return r
		}
		return ' '
	}, value)
	if utf8.RuneCountInString(value) > MaxCellLength {
		value = string([]rune(value)[:MaxCellLength])
	}
	return value
}

// CleanRows applies CleanCell to every cell. Shape and empty cells are kept.
func CleanRows(rows models.TableData) models.TableData {
	out := make(models.TableData, len(rows))
	for i, row := range rows {
		cleaned := make(models.TableRow, len(row))
		for j, cell := range row {
			cleaned[j] = CleanCell(cell)
		}
		out[i] = cleaned
	}
	return out
}
