package reportgen

import (
	"context"
	"errors"
	"testing"
)

func TestBuildSQL(t *testing.T) {
	sql := BuildSQL("SELECT * FROM t WHERE m='{month}' AND y={year}", map[string]interface{}{
		"month": "10",
		"year":  2025,
	})
	want := "SELECT * FROM t WHERE m='10' AND y=2025"
	if sql != want {
		t.Fatalf("BuildSQL => %q", sql)
	}
	// слот без параметра остаётся как есть
	if got := BuildSQL("WHERE x={nope}", nil); got != "WHERE x={nope}" {
		t.Fatalf("незаполненный слот => %q", got)
	}
}

func TestDeriveParams(t *testing.T) {
	out := DeriveParams(map[string]interface{}{"start_date": "2025-03-01"})
	if out["month"] != "03" {
		t.Fatalf("month => %v", out["month"])
	}
	if out["year"] != "2025" {
		t.Fatalf("year => %v", out["year"])
	}

	// явный month не перетирается
	out = DeriveParams(map[string]interface{}{"start_date": "2025-03-01", "month": "12"})
	if out["month"] != "12" {
		t.Fatalf("явный month перетёрт: %v", out["month"])
	}

	// кривая дата не даёт производных
	out = DeriveParams(map[string]interface{}{"start_date": "кривая"})
	if _, ok := out["month"]; ok {
		t.Fatal("кривая дата не должна давать month")
	}
}

type scriptedSource struct {
	results map[string]interface{}
	errs    map[string]error
}

func (s *scriptedSource) ExecuteQuery(_ context.Context, sql string) (interface{}, error) {
	if err, ok := s.errs[sql]; ok {
		return nil, err
	}
	return s.results[sql], nil
}

func (s *scriptedSource) Close() {}

func TestRunQueries_ContainsFailures(t *testing.T) {
	def := &FormulaDefinition{Queries: map[string]QueryDef{
		"good": {SQL: "SELECT 1"},
		"bad":  {SQL: "SELECT boom"},
	}}
	ds := &scriptedSource{
		results: map[string]interface{}{"SELECT 1": []map[string]interface{}{{"X": 1.0}}},
		errs:    map[string]error{"SELECT boom": errors.New("сломалось")},
	}
	diags := NewDiagnostics()
	out := RunQueries(context.Background(), ds, def, nil, diags)

	if out["good"] == nil {
		t.Fatal("здоровый запрос должен вернуть результат")
	}
	if out["bad"] != nil {
		t.Fatal("битый запрос должен дать nil")
	}
	if len(diags.Warnings()) != 1 {
		t.Fatalf("диагностик %d, ожидалась одна", len(diags.Warnings()))
	}
}

func TestRunQueries_NilSource(t *testing.T) {
	def := &FormulaDefinition{Queries: map[string]QueryDef{"q": {SQL: "SELECT 1"}}}
	diags := NewDiagnostics()
	out := RunQueries(context.Background(), nil, def, nil, diags)
	if out["q"] != nil {
		t.Fatal("без источника результат пуст")
	}
	if len(diags.Warnings()) != 1 {
		t.Fatal("ожидалось предупреждение про источник")
	}
}

func TestRunQueries_UnfilledSlotWarns(t *testing.T) {
	def := &FormulaDefinition{Queries: map[string]QueryDef{
		"q": {SQL: "SELECT * FROM t WHERE m='{month}'", Parameters: []string{"month"}},
	}}
	ds := &scriptedSource{results: map[string]interface{}{}}
	diags := NewDiagnostics()
	RunQueries(context.Background(), ds, def, nil, diags)
	if len(diags.Warnings()) != 1 {
		t.Fatalf("ожидалось предупреждение про параметр, есть %d", len(diags.Warnings()))
	}
}
