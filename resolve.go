package reportgen

import (
	"fmt"
	"strings"
	"time"
)

// Снапшот переменных — единый неизменяемый контекст рендеринга: после
// Resolve плейсхолдеры и валидатор читают только его.

type Snapshot struct {
	values map[string]interface{}
	order  []string
}

func newSnapshot() *Snapshot {
	return &Snapshot{values: map[string]interface{}{}}
}

func (s *Snapshot) set(name string, v interface{}) {
	if _, seen := s.values[name]; !seen {
		s.order = append(s.order, name)
	}
	s.values[name] = v
}

// Lookup возвращает значение по имени переменной.
func (s *Snapshot) Lookup(name string) (interface{}, bool) {
	v, ok := s.values[name]
	return v, ok
}

// ResolvePath разрешает точечный путь: первый сегмент — имя в снапшоте,
// остальные спускаются по значению.
func (s *Snapshot) ResolvePath(path string) (interface{}, bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, false
	}
	root, ok := s.values[segs[0]]
	if !ok {
		return nil, false
	}
	return resolveSegments(root, segs[1:])
}

// Names возвращает имена в порядке появления в снапшоте.
func (s *Snapshot) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Resolver строит снапшот из определения формулы, результатов запросов
// и параметров запуска.
type Resolver struct {
	def *FormulaDefinition
	now time.Time
}

func NewResolver(def *FormulaDefinition, now time.Time) *Resolver {
	return &Resolver{def: def, now: now}
}

// Resolve наполняет снапшот послойно: результаты запросов под их
// именами и параметры запуска, затем константы, затем привязки к
// запросам, затем вычисляемые переменные (formula, calculation,
// formatting) строго в порядке объявления. Вычисляемая переменная видит
// константы и привязки целиком, но из вычисляемых — только объявленные
// раньше неё; ссылка вперёд разрешается в nil с предупреждением.
func (r *Resolver) Resolve(results map[string]*NormalizedResult, params map[string]interface{}, diags *Diagnostics) *Snapshot {
	snap := newSnapshot()

	for name, nr := range results {
		snap.set(name, nr)
	}
	for name, v := range params {
		snap.set(name, v)
	}

	for _, def := range r.def.Variables {
		switch def.Type {
		case VarConstant:
			r.store(snap, def, def.Value)
		case VarParameter:
			key := def.Source
			if key == "" {
				if s, ok := def.Value.(string); ok && s != "" {
					key = s
				} else {
					key = def.Name
				}
			}
			v, ok := params[key]
			if !ok {
				diags.Add(SeverityWarning, StageResolve, def.Name,
					fmt.Sprintf("параметр %s не передан", key))
			}
			r.store(snap, def, v)
		}
	}

	for _, def := range r.def.Variables {
		if def.Type != VarQueryResult {
			continue
		}
		v, ok := snap.ResolvePath(def.Source)
		if !ok {
			diags.Add(SeverityWarning, StageResolve, def.Name,
				fmt.Sprintf("источник %s не разрешился, подставлен nil", def.Source))
		}
		r.store(snap, def, v)
	}

	eval := NewEvaluator(snap, r.now, diags)
	for _, def := range r.def.Variables {
		switch def.Type {
		case VarFormula:
			v, err := eval.Eval(def.Expression)
			if err != nil {
				diags.Add(SeverityWarning, StageResolve, def.Name, err.Error())
			}
			r.store(snap, def, v)
		case VarCalculation:
			v, err := evalCalculation(def, snap, diags)
			if err != nil {
				diags.Add(SeverityWarning, StageResolve, def.Name, err.Error())
			}
			r.store(snap, def, v)
		case VarFormatting:
			r.store(snap, def, r.applyFormat(def, snap, diags))
		}
	}

	return snap
}

func (r *Resolver) store(snap *Snapshot, def VariableDef, val interface{}) {
	if val == nil && def.Default != nil {
		val = def.Default
	}
	snap.set(def.Name, val)
}

// applyFormat форматирует значение источника по строке формата.
// Источники TODAY() и NOW() берут впрыснутые часы прогона. Формат со
// слотом %-вида идёт через Sprintf, иначе трактуется как шаблон даты в
// Excel-нотации (dd.MM.yyyy, HH:mm:ss).
func (r *Resolver) applyFormat(def VariableDef, snap *Snapshot, diags *Diagnostics) interface{} {
	var t time.Time
	switch strings.ToUpper(strings.TrimSpace(def.Source)) {
	case "TODAY()", "NOW()":
		t = r.now
	default:
		v, ok := snap.ResolvePath(def.Source)
		if !ok {
			diags.Add(SeverityWarning, StageResolve, def.Name,
				fmt.Sprintf("источник %s не разрешился, подставлен nil", def.Source))
			return nil
		}
		if def.Format == "" {
			return toCellString(v)
		}
		if strings.Contains(def.Format, "%") {
			return fmt.Sprintf(def.Format, v)
		}
		parsed, err := time.Parse(dateLayout, strings.TrimSpace(toCellString(v)))
		if err != nil {
			diags.Add(SeverityWarning, StageResolve, def.Name,
				fmt.Sprintf("значение %q не подошло под формат %q", toCellString(v), def.Format))
			return toCellString(v)
		}
		t = parsed
	}
	if def.Format == "" {
		return t.Format(dateLayout)
	}
	return t.Format(excelLayout(def.Format))
}

// Замены Excel-нотации дат на раскладку time. Порядок важен: длинные
// токены раньше коротких.
var excelLayoutReplacer = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MMMM", "January",
	"MMM", "Jan",
	"MM", "01",
	"dd", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

func excelLayout(pattern string) string {
	return excelLayoutReplacer.Replace(pattern)
}
