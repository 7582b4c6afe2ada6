package spreadsheet

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxSheetNameLength is the XLSX limit on sheet names.
	MaxSheetNameLength = 31
	baseNameLength     = 25
)

var invalidSheetChars = strings.NewReplacer(
	":", "_", `\`, "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_",
)

// SheetNamer hands out unique, valid sheet names in call order.
// Names are compared case-insensitively, as spreadsheet applications do.
type SheetNamer struct {
	used map[string]struct{}
}

func NewSheetNamer() *SheetNamer {
	return &SheetNamer{used: make(map[string]struct{})}
}

// Reserve marks name as taken so later calls to Next never return it.
func (n *SheetNamer) Reserve(name string) {
	n.used[strings.ToLower(name)] = struct{}{}
}

// Next returns a name derived from fileName. index is zero-based and only used when
// fileName sanitizes to nothing.
func (n *SheetNamer) Next(fileName string, index int) string {
	base := truncateRunes(sanitize(fileName), baseNameLength)
	if base == "" {
		base = fmt.Sprintf("Sheet %d", index+1)
	}

	name := base
	for counter := 1; n.taken(name); counter++ {
		suffix := fmt.Sprintf(" (%d)", counter)
		name = truncateRunes(base, MaxSheetNameLength-len(suffix)) + suffix
	}
	n.Reserve(name)
	return name
}

func (n *SheetNamer) taken(name string) bool {
	_, ok := n.used[strings.ToLower(name)]
	return ok
}

func sanitize(name string) string {
	name = invalidSheetChars.Replace(strings.TrimSpace(name))
	return strings.Trim(name, "'")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// ValidateSheetName reports why name cannot be used as a sheet name.
func ValidateSheetName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidSheetName)
	case utf8.RuneCountInString(name) > MaxSheetNameLength:
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidSheetName, name, MaxSheetNameLength)
	case invalidSheetChars.Replace(name) != name:
		return fmt.Errorf("%w: %q contains one of : \\ / ? * [ ]", ErrInvalidSheetName, name)
	case strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'"):
		return fmt.Errorf("%w: %q starts or ends with an apostrophe", ErrInvalidSheetName, name)
	}
	return nil
}
