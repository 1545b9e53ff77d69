package reportgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Рендеринг книги по снапшоту: скалярные подстановки и повторяющиеся
// секции. Секция — строка-образец, голова пути которой связана с
// таблицей; она размножается по числу строк таблицы с переносом стилей.

// RenderError — ошибка раскладки шаблона, которую нельзя молча
// проигнорировать (кривой путь секции, две таблицы на листе).
type RenderError struct {
	Sheet string
	Msg   string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("рендеринг листа %s: %s", e.Sheet, e.Msg)
}

// section — собранная заготовка секции одного листа.
type section struct {
	table   *NormalizedResult
	tplRow  int
	fields  map[int]string // колонка → поле таблицы
	styles  map[int]int    // колонка → styleID образца
	tokCols []int          // колонки с токенами на строке-образце
}

// RenderWorkbook подставляет значения снапшота в книгу. Сначала
// скаляры, затем секции: вставка строк после скаляров не сдвигает уже
// записанные значения. Недостающие значения дают пустую ячейку и
// предупреждение, не останавливая рендеринг.
func RenderWorkbook(f *excelize.File, snap *Snapshot, placeholders []Placeholder, diags *Diagnostics) error {
	scalars, sections := partition(snap, placeholders)

	if err := renderScalars(f, snap, scalars, diags); err != nil {
		return err
	}
	for sheet, phs := range sections {
		sec, err := buildSection(f, snap, sheet, phs)
		if err != nil {
			return err
		}
		if err := renderSection(f, sheet, sec); err != nil {
			return err
		}
	}
	return nil
}

// partition делит плейсхолдеры: голова пути связана с таблицей и второй
// сегмент числовой — секция; всё остальное — скаляр. Путь вида
// "таблица.ПОЛЕ" без индекса остаётся скалярным чтением первой строки.
func partition(snap *Snapshot, placeholders []Placeholder) ([]Placeholder, map[string][]Placeholder) {
	var scalars []Placeholder
	sections := map[string][]Placeholder{}
	for _, ph := range placeholders {
		segs := splitPath(ph.Path)
		if len(segs) >= 2 && isDigits(segs[1]) {
			if head, ok := snap.Lookup(segs[0]); ok {
				if _, isTable := head.(*NormalizedResult); isTable {
					sections[ph.Sheet] = append(sections[ph.Sheet], ph)
					continue
				}
			}
		}
		scalars = append(scalars, ph)
	}
	return scalars, sections
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func renderScalars(f *excelize.File, snap *Snapshot, scalars []Placeholder, diags *Diagnostics) error {
	// Группируем по ячейке: в одной ячейке может быть несколько токенов.
	type cellKey struct{ sheet, addr string }
	byCell := map[cellKey][]Placeholder{}
	var order []cellKey
	for _, ph := range scalars {
		k := cellKey{ph.Sheet, ph.Coordinate}
		if _, seen := byCell[k]; !seen {
			order = append(order, k)
		}
		byCell[k] = append(byCell[k], ph)
	}

	for _, k := range order {
		phs := byCell[k]
		text, err := f.GetCellValue(k.sheet, k.addr)
		if err != nil {
			return err
		}

		// Ячейка из одного токена пишется типизированно, иначе значения
		// вклеиваются в текст строками.
		if len(phs) == 1 && strings.TrimSpace(text) == phs[0].Raw {
			v, ok := snap.ResolvePath(phs[0].Path)
			if !ok {
				diags.Add(SeverityWarning, StageRender, phs[0].Path,
					fmt.Sprintf("%s!%s: значение не найдено, ячейка очищена", k.sheet, k.addr))
			}
			if err := f.SetCellValue(k.sheet, k.addr, valToCell(v)); err != nil {
				return err
			}
			continue
		}

		for _, ph := range phs {
			v, ok := snap.ResolvePath(ph.Path)
			if !ok {
				diags.Add(SeverityWarning, StageRender, ph.Path,
					fmt.Sprintf("%s!%s: значение не найдено, подставлена пустая строка", k.sheet, k.addr))
			}
			text = strings.ReplaceAll(text, ph.Raw, toCellString(v))
		}
		if err := f.SetCellValue(k.sheet, k.addr, text); err != nil {
			return err
		}
	}
	return nil
}

// buildSection находит строку-образец (минимальная строка с токенами
// секции) и собирает карту колонок и стилей.
func buildSection(f *excelize.File, snap *Snapshot, sheet string, phs []Placeholder) (*section, error) {
	sec := &section{
		fields: map[int]string{},
		styles: map[int]int{},
	}

	sec.tplRow = phs[0].Row
	for _, ph := range phs {
		if ph.Row < sec.tplRow {
			sec.tplRow = ph.Row
		}
	}

	var tableName string
	for _, ph := range phs {
		if ph.Row != sec.tplRow {
			// Токены секции ниже образца лежат в устаревших строках,
			// их снесёт зачистка.
			continue
		}
		segs := splitPath(ph.Path)
		if len(segs) < 3 {
			return nil, &RenderError{Sheet: sheet, Msg: fmt.Sprintf("путь секции %q короче формы таблица.строка.поле", ph.Path)}
		}
		if tableName == "" {
			tableName = segs[0]
		} else if tableName != segs[0] {
			return nil, &RenderError{Sheet: sheet, Msg: fmt.Sprintf("на листе две таблицы: %s и %s", tableName, segs[0])}
		}
		sec.fields[ph.Col] = segs[len(segs)-1]
		sec.tokCols = append(sec.tokCols, ph.Col)

		if sid, err := f.GetCellStyle(sheet, ph.Coordinate); err == nil && sid != 0 {
			sec.styles[ph.Col] = sid
		}
	}

	head, _ := snap.Lookup(tableName)
	table, ok := head.(*NormalizedResult)
	if !ok || table == nil {
		return nil, &RenderError{Sheet: sheet, Msg: fmt.Sprintf("%s не является таблицей", tableName)}
	}
	sec.table = table
	return sec, nil
}

func renderSection(f *excelize.File, sheet string, sec *section) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	maxRow := len(rows)

	// Всё ниже строки-образца считается устаревшим содержимым прошлых
	// прогонов и удаляется. Снизу вверх, чтобы номера не съезжали.
	for r := maxRow; r > sec.tplRow; r-- {
		if err := f.RemoveRow(sheet, r); err != nil {
			return err
		}
	}

	n := len(sec.table.Rows)
	if n > 0 {
		if err := f.InsertRows(sheet, sec.tplRow+1, n); err != nil {
			return err
		}
		cols := make([]int, 0, len(sec.fields))
		for col := range sec.fields {
			cols = append(cols, col)
		}
		sort.Ints(cols)

		for i, row := range sec.table.Rows {
			dstRow := sec.tplRow + 1 + i
			for _, col := range cols {
				addr, err := excelize.CoordinatesToCellName(col, dstRow)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(sheet, addr, valToCell(row[sec.fields[col]])); err != nil {
					return err
				}
				if sid, ok := sec.styles[col]; ok {
					if err := f.SetCellStyle(sheet, addr, addr, sid); err != nil {
						return err
					}
				}
			}
		}
	}

	// Строка-образец остаётся, но токены из неё убираются.
	for _, col := range sec.tokCols {
		addr, err := excelize.CoordinatesToCellName(col, sec.tplRow)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, addr, ""); err != nil {
			return err
		}
	}
	return nil
}
