package reportgen

import (
	"errors"
	"strings"
	"testing"
)

const sampleFormula = `{
	"queries": {
		"data_records": {"sql": "SELECT * FROM t WHERE m = '{month}'", "parameters": ["month"]}
	},
	"variables": {
		"title": {"type": "constant", "value": "Отчёт"},
		"period": {"type": "formula", "expression": "MONTH(start_date) & \" \" & YEAR(start_date)"},
		"start_date": {"type": "parameter"},
		"total": {"type": "query_result", "source": "data_records.TOTAL"}
	}
}`

func TestParseFormula_PreservesOrder(t *testing.T) {
	def, err := ParseFormula(strings.NewReader(sampleFormula))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"title", "period", "start_date", "total"}
	if len(def.Variables) != len(want) {
		t.Fatalf("переменных %d, ожидалось %d", len(def.Variables), len(want))
	}
	for i, name := range want {
		if def.Variables[i].Name != name {
			t.Fatalf("позиция %d: %s, ожидалось %s", i, def.Variables[i].Name, name)
		}
	}
	if def.Queries["data_records"].Parameters[0] != "month" {
		t.Fatalf("queries => %v", def.Queries)
	}
}

func TestParseFormula_DefaultType(t *testing.T) {
	src := `{"queries": {}, "variables": {"x": {"value": 1}}}`
	def, err := ParseFormula(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if def.Variables[0].Type != VarConstant {
		t.Fatalf("пустой тип должен стать constant, а не %q", def.Variables[0].Type)
	}
}

func TestParseFormula_SchemaErrors(t *testing.T) {
	cases := []string{
		// нет queries, нет variables, неизвестный тип, не объект
		`{"variables": {}}`,
		`{"queries": {}}`,
		`{"queries": {}, "variables": {"x": {"type": "чужой"}}}`,
		`[1, 2, 3]`,
	}
	for _, src := range cases {
		_, err := ParseFormula(strings.NewReader(src))
		var se *SchemaError
		if !errors.As(err, &se) {
			t.Errorf("%s: ожидалась SchemaError, получено %v", src, err)
		}
	}
}

func TestParseFormula_DuplicateVariable(t *testing.T) {
	src := `{"queries": {}, "variables": {"x": {"type": "constant"}, "x": {"type": "constant"}}}`
	if _, err := ParseFormula(strings.NewReader(src)); err == nil {
		t.Fatal("дубликат имени должен быть ошибкой")
	}
}

func TestVariableLookup(t *testing.T) {
	def, err := ParseFormula(strings.NewReader(sampleFormula))
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := def.Variable("period"); !ok || v.Type != VarFormula {
		t.Fatalf("Variable(period) => %v, %v", v, ok)
	}
	if _, ok := def.Variable("нет такой"); ok {
		t.Fatal("несуществующая переменная")
	}
}
