package reportgen

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Generator — конвейер генерации отчёта: запросы → нормализация →
// снапшот → сканирование шаблона → валидация → рендеринг → сохранение.
type Generator struct {
	def *FormulaDefinition
	ds  DataSource
	log *slog.Logger
	now func() time.Time
}

// RunResult — итог одного прогона.
type RunResult struct {
	OutputPath string
	Snapshot   *Snapshot
	Validation *ValidationReport
	Diags      *Diagnostics
	Duration   time.Duration
}

func NewGenerator(def *FormulaDefinition, ds DataSource, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{def: def, ds: ds, log: log, now: time.Now}
}

// WithClock подменяет источник времени (TODAY, имена файлов). Нужен в
// тестах.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// DefaultOutputPath строит имя выходного файла рядом с шаблоном:
// report_<имя шаблона>_<метка времени>.xlsx.
func DefaultOutputPath(templatePath string, now time.Time) string {
	dir := filepath.Dir(templatePath)
	base := strings.TrimSuffix(filepath.Base(templatePath), filepath.Ext(templatePath))
	return filepath.Join(dir, fmt.Sprintf("report_%s_%s.xlsx", base, now.Format("20060102_150405")))
}

// Generate выполняет полный прогон. Ошибки запросов и разрешения
// переменных не останавливают прогон, они копятся в диагностике;
// ошибкой возврата являются только проблемы с самим файлом шаблона и
// раскладкой секций.
func (g *Generator) Generate(ctx context.Context, templatePath, outputPath string, params map[string]interface{}) (*RunResult, error) {
	started := g.now()
	diags := NewDiagnostics()

	if outputPath == "" {
		outputPath = DefaultOutputPath(templatePath, started)
	}
	log := g.log.With("run_id", diags.RunID.String())
	log.Info("📊 начинаем генерацию отчёта",
		"шаблон", templatePath, "выход", outputPath,
		"запросов", len(g.def.Queries), "переменных", len(g.def.Variables))

	params = DeriveParams(params)

	log.Info("🔄 выполнение запросов")
	raw := RunQueries(ctx, g.ds, g.def, params, diags)
	results := NormalizeResults(raw, diags)
	for name, nr := range results {
		log.Debug("запрос нормализован", "запрос", name, "строк", len(nr.Rows), "полей", len(nr.Fields))
	}

	log.Info("🔄 разрешение переменных")
	snap := NewResolver(g.def, started).Resolve(results, params, diags)

	log.Info("🔄 загрузка шаблона")
	f, err := excelize.OpenFile(templatePath)
	if err != nil {
		log.Error("❌ шаблон не открылся", "ошибка", err)
		return nil, fmt.Errorf("открытие шаблона %s: %w", templatePath, err)
	}
	defer f.Close()

	placeholders, err := ScanWorkbook(f)
	if err != nil {
		return nil, fmt.Errorf("сканирование шаблона: %w", err)
	}
	log.Info("✅ шаблон просканирован", "плейсхолдеров", len(placeholders))

	report := Validate(placeholders, snap)
	if !report.OK() {
		log.Warn("⚠️ валидация нашла неразрешимые плейсхолдеры", "ошибок", len(report.Errors))
		for _, e := range report.Errors {
			diags.Add(SeverityError, StageValidate, "placeholder", e)
		}
	}

	log.Info("🔄 рендеринг")
	if err := RenderWorkbook(f, snap, placeholders, diags); err != nil {
		log.Error("❌ ошибка рендеринга", "ошибка", err)
		return nil, err
	}

	if err := f.SaveAs(outputPath); err != nil {
		log.Error("❌ ошибка сохранения", "ошибка", err)
		return nil, fmt.Errorf("сохранение %s: %w", outputPath, err)
	}

	dur := time.Since(started)
	log.Info("✅ отчёт готов", "файл", outputPath, "за", dur.String())
	for _, w := range diags.Warnings() {
		log.Warn("диагностика", "этап", w.Stage, "предмет", w.Subject, "сообщение", w.Message)
	}

	return &RunResult{
		OutputPath: outputPath,
		Snapshot:   snap,
		Validation: report,
		Diags:      diags,
		Duration:   dur,
	}, nil
}
