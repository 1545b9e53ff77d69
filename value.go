package reportgen

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Разрешение точечных путей по значениям снапшота. Пути не знают типов
// заранее: сегмент применяется к тому, что лежит под предыдущим.

// splitPath разбивает точечный путь на сегменты. Пустые сегменты
// (двойная точка, точка в начале/конце) отбрасываются.
func splitPath(path string) []string {
	parts := strings.Split(path, ".")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// resolveSegments спускается по сегментам от root. Возвращает (nil, false)
// при первом непроходимом сегменте. Правила спуска:
//   - map[string]interface{} и Row — по ключу;
//   - []interface{} — по числовому индексу;
//   - *NormalizedResult — числовой сегмент выбирает строку, нечисловой
//     трактуется как поле первой строки (скалярное чтение таблицы).
func resolveSegments(root interface{}, segs []string) (interface{}, bool) {
	cur := root
	for _, seg := range segs {
		switch v := cur.(type) {
		case map[string]interface{}:
			nv, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = nv
		case Row:
			nv, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = nv
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		case *NormalizedResult:
			if v == nil {
				return nil, false
			}
			if i, err := strconv.Atoi(seg); err == nil {
				if i < 0 || i >= len(v.Rows) {
					return nil, false
				}
				cur = v.Rows[i]
				continue
			}
			// Нечисловой сегмент над таблицей: поле первой строки.
			if len(v.Rows) == 0 {
				return nil, false
			}
			nv, ok := v.Rows[0][seg]
			if !ok {
				return nil, false
			}
			cur = nv
		default:
			return nil, false
		}
	}
	return cur, true
}

// toCellString приводит значение к строке для подстановки в ячейку.
// nil отображается пустой строкой, целочисленные float — без дробной части.
func toCellString(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case float64:
		if vv == float64(int64(vv)) {
			return strconv.FormatInt(int64(vv), 10)
		}
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case float32:
		return toCellString(float64(vv))
	case int:
		return strconv.Itoa(vv)
	case int64:
		return strconv.FormatInt(vv, 10)
	case bool:
		if vv {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", vv)
	}
}

// valToCell нормализует значение перед записью в Excel. Числа и булевы
// уходят типизированно, срезы строк склеиваются через запятую,
// остальные составные значения сериализуются в JSON.
func valToCell(v interface{}) interface{} {
	if v == nil {
		return ""
	}
	switch vv := v.(type) {
	case string, float64, float32, int, int64, bool:
		return vv
	case []interface{}:
		allStr := true
		strs := make([]string, len(vv))
		for i, it := range vv {
			if s, ok := it.(string); ok {
				strs[i] = s
			} else {
				allStr = false
				break
			}
		}
		if allStr {
			return strings.Join(strs, ", ")
		}
		b, _ := json.Marshal(vv)
		return string(b)
	case Row, map[string]interface{}:
		b, _ := json.Marshal(vv)
		return string(b)
	default:
		return fmt.Sprintf("%v", vv)
	}
}

// isBlank — значение считается пустым: nil, пустая строка, строка из
// пробелов.
func isBlank(v interface{}) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(vv) == ""
	default:
		return false
	}
}

// toFloat пытается привести значение к числу. Строки парсятся,
// булевы и структуры — нет.
func toFloat(v interface{}) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
