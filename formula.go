package reportgen

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Формула отчёта: декларативная схема из именованных запросов и переменных.
// Загружается один раз на прогон и после загрузки не изменяется.

// Типы переменных формулы.
const (
	VarConstant    = "constant"
	VarQueryResult = "query_result"
	VarFormula     = "formula"
	VarCalculation = "calculation"
	VarParameter   = "parameter"
	VarFormatting  = "formatting"
)

// QueryDef — SQL-шаблон со слотами вида {start_date}.
type QueryDef struct {
	SQL        string   `json:"sql"`
	Parameters []string `json:"parameters"`
}

// VariableDef описывает одну выходную переменную.
// Смысл полей зависит от Type:
//   - constant:     Value — литерал;
//   - parameter:    Source — имя параметра прогона (пустое — имя переменной);
//   - query_result: Source — "запрос" либо "запрос.строка.ПОЛЕ";
//   - formula:      Expression — выражение мини-языка (IF/ISBLANK/MONTH/YEAR/TODAY, &);
//   - calculation:  Expression — арифметика над биндингами из Variables;
//   - formatting:   Source — путь, TODAY() или NOW(); Format — шаблон даты
//     в Excel-нотации (dd.MM.yyyy) либо %-шаблон Sprintf.
type VariableDef struct {
	Name       string            `json:"-"`
	Type       string            `json:"type"`
	Value      interface{}       `json:"value"`
	Source     string            `json:"source"`
	Expression string            `json:"expression"`
	Variables  map[string]string `json:"variables"`
	Format     string            `json:"format"`
	Default    interface{}       `json:"default"`
}

// FormulaDefinition — загруженная формула. Variables хранится срезом,
// потому что порядок объявления в JSON задаёт порядок вычисления.
type FormulaDefinition struct {
	Queries   map[string]QueryDef
	Variables []VariableDef
}

// SchemaError — фатальная ошибка схемы формулы: прогон не начинается.
type SchemaError struct {
	Msg string
	Err error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("схема формулы: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("схема формулы: %s", e.Msg)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Variable возвращает объявление переменной по имени.
func (d *FormulaDefinition) Variable(name string) (VariableDef, bool) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableDef{}, false
}

// LoadFormula читает формулу из JSON-файла.
func LoadFormula(path string) (*FormulaDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SchemaError{Msg: fmt.Sprintf("не удалось открыть %s", path), Err: err}
	}
	defer f.Close()
	return ParseFormula(f)
}

// ParseFormula разбирает формулу, сохраняя порядок объявления переменных.
// encoding/json теряет порядок ключей объекта, поэтому секция variables
// читается потоково через json.Decoder.
func ParseFormula(r io.Reader) (*FormulaDefinition, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, &SchemaError{Msg: "некорректный JSON", Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &SchemaError{Msg: "ожидался JSON-объект на верхнем уровне"}
	}

	def := &FormulaDefinition{}
	seenQueries, seenVariables := false, false

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, &SchemaError{Msg: "некорректный JSON", Err: err}
		}
		key := keyTok.(string)

		switch key {
		case "queries":
			if err := dec.Decode(&def.Queries); err != nil {
				return nil, &SchemaError{Msg: "секция queries повреждена", Err: err}
			}
			seenQueries = true
		case "variables":
			vars, err := decodeOrderedVariables(dec)
			if err != nil {
				return nil, err
			}
			def.Variables = vars
			seenVariables = true
		default:
			// Посторонние секции (report_info и т.п.) пропускаем.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, &SchemaError{Msg: fmt.Sprintf("секция %s повреждена", key), Err: err}
			}
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, &SchemaError{Msg: "некорректный JSON", Err: err}
	}

	if !seenQueries {
		return nil, &SchemaError{Msg: "отсутствует обязательная секция queries"}
	}
	if !seenVariables {
		return nil, &SchemaError{Msg: "отсутствует обязательная секция variables"}
	}
	if def.Queries == nil {
		def.Queries = map[string]QueryDef{}
	}
	for _, v := range def.Variables {
		switch v.Type {
		case VarConstant, VarQueryResult, VarFormula, VarCalculation, VarParameter, VarFormatting:
		default:
			return nil, &SchemaError{Msg: fmt.Sprintf("переменная %s: неизвестный тип %q", v.Name, v.Type)}
		}
	}
	return def, nil
}

func decodeOrderedVariables(dec *json.Decoder) ([]VariableDef, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, &SchemaError{Msg: "секция variables повреждена", Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &SchemaError{Msg: "секция variables должна быть объектом"}
	}

	var vars []VariableDef
	names := map[string]bool{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, &SchemaError{Msg: "секция variables повреждена", Err: err}
		}
		name := keyTok.(string)
		if names[name] {
			return nil, &SchemaError{Msg: fmt.Sprintf("переменная %s объявлена дважды", name)}
		}
		names[name] = true

		var v VariableDef
		if err := dec.Decode(&v); err != nil {
			return nil, &SchemaError{Msg: fmt.Sprintf("переменная %s повреждена", name), Err: err}
		}
		v.Name = name
		if v.Type == "" {
			v.Type = VarConstant
		}
		vars = append(vars, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, &SchemaError{Msg: "секция variables повреждена", Err: err}
	}
	return vars, nil
}
