package reportgen

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DataSource — источник данных для запросов формулы. Реализации:
// postgres-пул и текстовый isql-клиент; в тестах — заглушка с
// фиксированными результатами.
type DataSource interface {
	// ExecuteQuery выполняет SQL и возвращает сырой результат в одной
	// из форм, которые понимает Normalize.
	ExecuteQuery(ctx context.Context, sql string) (interface{}, error)
	Close()
}

// BuildSQL подставляет параметры в слоты вида {имя}. Слот без
// параметра остаётся как есть и попадает в диагностику вызывающего.
func BuildSQL(sql string, params map[string]interface{}) string {
	for name, v := range params {
		sql = strings.ReplaceAll(sql, "{"+name+"}", toCellString(v))
	}
	return sql
}

// DeriveParams дополняет параметры запуска производными значениями:
// из start_date выводятся month (с нулём впереди) и year, если они не
// заданы явно.
func DeriveParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	sd, ok := out["start_date"]
	if !ok {
		return out
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(toCellString(sd)))
	if err != nil {
		return out
	}
	if _, has := out["month"]; !has {
		out["month"] = fmt.Sprintf("%02d", int(t.Month()))
	}
	if _, has := out["year"]; !has {
		out["year"] = fmt.Sprintf("%d", t.Year())
	}
	return out
}

// RunQueries выполняет все запросы формулы. Падение одного запроса не
// блокирует остальные: его результат становится пустым, ошибка уходит
// в диагностику.
func RunQueries(ctx context.Context, ds DataSource, def *FormulaDefinition, params map[string]interface{}, diags *Diagnostics) map[string]interface{} {
	out := make(map[string]interface{}, len(def.Queries))
	for name, q := range def.Queries {
		if ds == nil {
			diags.Add(SeverityWarning, StageQuery, name, "источник данных не настроен, результат пуст")
			out[name] = nil
			continue
		}
		sql := BuildSQL(q.SQL, params)
		for _, p := range q.Parameters {
			if strings.Contains(sql, "{"+p+"}") {
				diags.Add(SeverityWarning, StageQuery, name,
					fmt.Sprintf("параметр %s не подставлен", p))
			}
		}
		raw, err := ds.ExecuteQuery(ctx, sql)
		if err != nil {
			diags.Add(SeverityError, StageQuery, name, err.Error())
			out[name] = nil
			continue
		}
		out[name] = raw
	}
	return out
}
