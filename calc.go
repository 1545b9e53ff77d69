package reportgen

import (
	"fmt"

	expro "github.com/expr-lang/expr"
)

// Переменные типа "calculation" считаются движком expr-lang: выражение
// получает локальные имена, связанные с путями по снапшоту и результатам
// запросов через маппинг def.Variables. Это арифметика общего вида,
// которой закрытой грамматике формул не хватает.

// evalCalculation связывает локальные имена с источниками и выполняет
// выражение. Неразрешившийся источник даёт nil в окружении и
// предупреждение в диагностику.
func evalCalculation(def VariableDef, snap *Snapshot, diags *Diagnostics) (interface{}, error) {
	env := map[string]interface{}{
		// Доступ к значениям по точечному пути, минуя связывание
		"path": func(p string) interface{} {
			if v, ok := snap.ResolvePath(p); ok {
				return v
			}
			return nil
		},
	}
	for local, source := range def.Variables {
		v, ok := snap.ResolvePath(source)
		if !ok {
			diags.Add(SeverityWarning, StageResolve, def.Name,
				fmt.Sprintf("источник %s (%s) не разрешился, подставлен nil", local, source))
			env[local] = nil
			continue
		}
		// Числа из текстовых источников приводим заранее, чтобы
		// арифметика в выражении не падала на строках.
		if s, isStr := v.(string); isStr {
			if f, okf := toFloat(s); okf {
				v = f
			}
		}
		env[local] = v
	}

	program, err := expro.Compile(def.Expression, expro.Env(env), expro.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("calculation %s: компиляция: %w", def.Name, err)
	}
	out, err := expro.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("calculation %s: выполнение: %w", def.Name, err)
	}
	return out, nil
}
