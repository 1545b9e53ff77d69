package reportgen

import (
	"fmt"
	"strings"
)

// Валидация плейсхолдеров против снапшота до рендеринга: каждый токен
// либо разрешается, либо попадает в отчёт. Валидация ничего не меняет,
// её итог — человекочитаемая сводка.

// ValidationReport — результат проверки всех плейсхолдеров книги.
type ValidationReport struct {
	Errors   []string // путь не разрешается
	Warnings []string // путь разрешается в пустое значение
	Info     []string // путь разрешается в значение
}

// OK — в книге нет неразрешимых плейсхолдеров.
func (r *ValidationReport) OK() bool { return len(r.Errors) == 0 }

// Validate проверяет каждый плейсхолдер по снапшоту. Токен секции
// (голова — таблица) проверяется на существование поля в таблице, не
// на конкретную строку: номер строки в токене — позиция образца, а не
// адрес данных. Пустая секция и дубликаты путей внутри секции — info,
// определённое-но-пустое значение — warning, неопределённая переменная
// или несуществующее поле — error.
func Validate(placeholders []Placeholder, snap *Snapshot) *ValidationReport {
	rep := &ValidationReport{}
	seen := map[string]bool{}
	sectionPaths := map[string]bool{}

	for _, ph := range placeholders {
		key := ph.Sheet + "!" + ph.Coordinate + ":" + ph.Path
		if seen[key] {
			continue
		}
		seen[key] = true

		loc := fmt.Sprintf("%s!%s: {{%s}}", ph.Sheet, ph.Coordinate, ph.Path)
		segs := splitPath(ph.Path)
		if len(segs) == 0 {
			rep.Errors = append(rep.Errors, loc+" — пустой путь")
			continue
		}

		head, ok := snap.Lookup(segs[0])
		if !ok {
			rep.Errors = append(rep.Errors, loc+" — переменная не определена")
			continue
		}

		if table, isTable := head.(*NormalizedResult); isTable && len(segs) >= 3 {
			field := segs[len(segs)-1]
			if !hasField(table, field) {
				rep.Errors = append(rep.Errors,
					fmt.Sprintf("%s — в таблице %s нет поля %s", loc, segs[0], field))
				continue
			}
			pathKey := ph.Sheet + ":" + ph.Path
			if sectionPaths[pathKey] {
				rep.Info = append(rep.Info, loc+" — дубликат внутри секции")
				continue
			}
			sectionPaths[pathKey] = true
			if len(table.Rows) == 0 {
				rep.Info = append(rep.Info, loc+" — таблица пуста, секция будет нулевой длины")
				continue
			}
			rep.Info = append(rep.Info, loc)
			continue
		}

		v, ok := snap.ResolvePath(ph.Path)
		if !ok {
			rep.Errors = append(rep.Errors, loc+" — путь не разрешается")
			continue
		}
		if isBlank(v) {
			rep.Warnings = append(rep.Warnings, loc+" — значение пустое")
			continue
		}
		rep.Info = append(rep.Info, loc)
	}
	return rep
}

func hasField(table *NormalizedResult, field string) bool {
	for _, f := range table.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Summary формирует текстовую сводку валидации для журнала и вывода
// оператору.
func (r *ValidationReport) Summary() string {
	var sb strings.Builder
	sb.WriteString("=== Отчёт о валидации плейсхолдеров ===\n")
	fmt.Fprintf(&sb, "Проверено: %d, ошибок: %d, предупреждений: %d\n",
		len(r.Errors)+len(r.Warnings)+len(r.Info), len(r.Errors), len(r.Warnings))

	if len(r.Errors) > 0 {
		sb.WriteString("\nОшибки:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - " + e + "\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("\nПредупреждения:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - " + w + "\n")
		}
	}
	if r.OK() {
		sb.WriteString("\nВсе плейсхолдеры разрешаются.\n")
	}
	return sb.String()
}
