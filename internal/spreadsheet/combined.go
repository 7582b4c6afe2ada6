package spreadsheet

import "github.com/feichai0017/sheetscan/internal/models"

// CombinedSheetName is the summary sheet appended to batch workbooks.
const CombinedSheetName = "All Files Combined"

// FileRows is one file's contribution to a workbook.
type FileRows struct {
	FileName string
	Rows     models.TableData
}

// Combined lays every file out one after another: a header, then per file a
// "File: <name>" marker, its rows prefixed by the file name, and an empty separator.
func Combined(files []FileRows) Sheet {
	rows := models.TableData{{"File Name", "Content"}}
	for _, f := range files {
		name := CleanCell(f.FileName)
		rows = append(rows, models.TableRow{CleanCell("File: " + f.FileName), ""})
		for _, row := range f.Rows {
			prefixed := make(models.TableRow, 0, len(row)+1)
			prefixed = append(prefixed, name)
			rows = append(rows, append(prefixed, row...))
		}
		rows = append(rows, models.TableRow{"", ""})
	}
	return Sheet{Name: CombinedSheetName, Rows: rows}
}

// BatchSheets builds one sheet per file, named through a fresh SheetNamer, followed
// by the combined sheet.
func BatchSheets(files []FileRows) []Sheet {
	namer := NewSheetNamer()
	namer.Reserve(CombinedSheetName)

	sheets := make([]Sheet, 0, len(files)+1)
	for i, f := range files {
		sheets = append(sheets, Sheet{Name: namer.Next(f.FileName, i), Rows: f.Rows})
	}
	return append(sheets, Combined(files))
}
