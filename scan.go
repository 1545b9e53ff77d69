package reportgen

import (
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Сканирование книги: находим все плейсхолдеры вида {{путь}} с их
// координатами. Сканирование ничего не меняет в книге.

var rxPlaceholder = regexp.MustCompile(`\{\{([^{}]+?)\}\}`)

// Placeholder — одно вхождение {{...}} в ячейке.
type Placeholder struct {
	Raw        string // полный токен вместе со скобками
	Path       string // путь внутри скобок без пробелов по краям
	Sheet      string
	Coordinate string // адрес ячейки, например B4
	Row        int    // 1-базный
	Col        int    // 1-базный
}

// ScanWorkbook обходит все листы и возвращает плейсхолдеры в порядке
// лист → строка → колонка → позиция в тексте. Ячейка с несколькими
// токенами даёт несколько записей с одинаковыми координатами.
func ScanWorkbook(f *excelize.File) ([]Placeholder, error) {
	var out []Placeholder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		for ri, row := range rows {
			for ci, cell := range row {
				if !strings.Contains(cell, "{{") {
					continue
				}
				matches := rxPlaceholder.FindAllStringSubmatch(cell, -1)
				if len(matches) == 0 {
					continue
				}
				addr, err := excelize.CoordinatesToCellName(ci+1, ri+1)
				if err != nil {
					return nil, err
				}
				for _, m := range matches {
					out = append(out, Placeholder{
						Raw:        m[0],
						Path:       strings.TrimSpace(m[1]),
						Sheet:      sheet,
						Coordinate: addr,
						Row:        ri + 1,
						Col:        ci + 1,
					})
				}
			}
		}
	}
	return out, nil
}
