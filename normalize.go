package reportgen

import (
	"fmt"
	"sort"
)

// Нормализация сырых результатов запросов к единой канонической форме:
// упорядоченная последовательность строк, каждая строка — поле→значение.

// Row — одна строка нормализованного результата.
type Row map[string]interface{}

// NormalizedResult — канонический результат одного запроса.
// Пустой Rows — валидное состояние «данных нет», не ошибка.
type NormalizedResult struct {
	Fields []string
	Rows   []Row
}

// NormalizationError — форма сырого результата не распознана.
// Несёт имя запроса для диагностики; остальные запросы не блокирует.
type NormalizationError struct {
	Query string
	Msg   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("нормализация %s: %s", e.Query, e.Msg)
}

// Normalize приводит сырой результат запроса к NormalizedResult.
// Принимаемые формы:
//   - map с ключами headers/rows (текстовый клиент);
//   - []map[string]interface{} — список записей;
//   - []interface{} из записей либо позиционных кортежей
//     (заголовки кортежей выводятся как COLUMN_1..COLUMN_n);
//   - nil — «данных нет»;
//   - готовый *NormalizedResult проходит насквозь.
//
// Наборы полей выравниваются по объединению: отсутствующее в строке
// поле заполняется nil и никогда не опускается.
func Normalize(query string, raw interface{}) (*NormalizedResult, error) {
	switch v := raw.(type) {
	case nil:
		return &NormalizedResult{}, nil
	case *NormalizedResult:
		if v == nil {
			return &NormalizedResult{}, nil
		}
		return v, nil
	case map[string]interface{}:
		return normalizeHeaderRows(query, v)
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return normalizeRecords(items), nil
	case []Row:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = map[string]interface{}(v[i])
		}
		return normalizeRecords(items), nil
	case []interface{}:
		return normalizeList(query, v)
	default:
		return nil, &NormalizationError{Query: query, Msg: fmt.Sprintf("неизвестная форма результата %T", raw)}
	}
}

// NormalizeResults нормализует каждый запрос независимо: повреждённый
// результат одного запроса не блокирует остальные, он становится пустым,
// а ошибка уходит в диагностику.
func NormalizeResults(raw map[string]interface{}, diags *Diagnostics) map[string]*NormalizedResult {
	out := make(map[string]*NormalizedResult, len(raw))
	for name, r := range raw {
		nr, err := Normalize(name, r)
		if err != nil {
			diags.Add(SeverityWarning, StageNormalize, name, err.Error())
			nr = &NormalizedResult{}
		}
		out[name] = nr
	}
	return out
}

func normalizeHeaderRows(query string, v map[string]interface{}) (*NormalizedResult, error) {
	rawHeaders, okH := v["headers"]
	rawRows, okR := v["rows"]
	if !okH && !okR {
		return nil, &NormalizationError{Query: query, Msg: "map без ключей headers/rows"}
	}

	var headers []string
	switch h := rawHeaders.(type) {
	case nil:
	case []string:
		headers = h
	case []interface{}:
		for _, it := range h {
			headers = append(headers, fmt.Sprintf("%v", it))
		}
	default:
		return nil, &NormalizationError{Query: query, Msg: fmt.Sprintf("headers имеет форму %T", rawHeaders)}
	}

	var items []interface{}
	switch r := rawRows.(type) {
	case nil:
	case []interface{}:
		items = r
	case []map[string]interface{}:
		for i := range r {
			items = append(items, r[i])
		}
	default:
		return nil, &NormalizationError{Query: query, Msg: fmt.Sprintf("rows имеет форму %T", rawRows)}
	}

	rows := make([]Row, 0, len(items))
	for i, it := range items {
		switch rec := it.(type) {
		case map[string]interface{}:
			rows = append(rows, Row(rec))
		case Row:
			rows = append(rows, rec)
		case []interface{}:
			row := Row{}
			for j, val := range rec {
				row[tupleField(headers, j)] = val
			}
			rows = append(rows, row)
		default:
			return nil, &NormalizationError{Query: query, Msg: fmt.Sprintf("строка %d имеет форму %T", i, it)}
		}
	}
	return padRows(headers, rows), nil
}

func normalizeList(query string, items []interface{}) (*NormalizedResult, error) {
	rows := make([]Row, 0, len(items))
	for i, it := range items {
		switch rec := it.(type) {
		case map[string]interface{}:
			rows = append(rows, Row(rec))
		case Row:
			rows = append(rows, rec)
		case []interface{}:
			// Позиционный кортеж без заголовков: имена колонок по индексу.
			row := Row{}
			for j, val := range rec {
				row[tupleField(nil, j)] = val
			}
			rows = append(rows, row)
		default:
			return nil, &NormalizationError{Query: query, Msg: fmt.Sprintf("элемент %d имеет форму %T", i, it)}
		}
	}
	return padRows(nil, rows), nil
}

func normalizeRecords(items []interface{}) *NormalizedResult {
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		if rec, ok := it.(map[string]interface{}); ok {
			rows = append(rows, Row(rec))
		}
	}
	return padRows(nil, rows)
}

func tupleField(headers []string, idx int) string {
	if idx < len(headers) {
		return headers[idx]
	}
	return fmt.Sprintf("COLUMN_%d", idx+1)
}

// padRows выравнивает наборы ключей всех строк по их объединению.
// Поля, которых нет в заголовках, добавляются в отсортированном порядке,
// чтобы результат был детерминированным.
func padRows(headers []string, rows []Row) *NormalizedResult {
	fields := append([]string(nil), headers...)
	known := map[string]bool{}
	for _, f := range fields {
		known[f] = true
	}

	var extra []string
	for _, row := range rows {
		for f := range row {
			if !known[f] {
				known[f] = true
				extra = append(extra, f)
			}
		}
	}
	sort.Strings(extra)
	fields = append(fields, extra...)

	for _, row := range rows {
		for _, f := range fields {
			if _, ok := row[f]; !ok {
				row[f] = nil
			}
		}
	}
	return &NormalizedResult{Fields: fields, Rows: rows}
}
