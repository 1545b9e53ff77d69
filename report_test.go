package reportgen_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"

	"github.com/nikitaxru/reportgen"
)

// fakeSource — источник данных с фиксированными результатами.
type fakeSource struct {
	results map[string]interface{}
	seen    []string // полученные SQL после подстановки
}

func (f *fakeSource) ExecuteQuery(_ context.Context, sql string) (interface{}, error) {
	f.seen = append(f.seen, sql)
	for name, res := range f.results {
		if strings.Contains(sql, name) {
			return res, nil
		}
	}
	return nil, fmt.Errorf("нет результата для %q", sql)
}

func (f *fakeSource) Close() {}

// GeneratorSuite — сьют тестов полного конвейера генерации
type GeneratorSuite struct {
	suite.Suite
}

func TestGeneratorSuite(t *testing.T) {
	suite.Run(t, new(GeneratorSuite))
}

const pipelineFormula = `{
	"queries": {
		"data_records": {
			"sql": "SELECT * FROM records WHERE m = '{month}'",
			"parameters": ["month"]
		}
	},
	"variables": {
		"title": {"type": "constant", "value": "Сводный отчёт"},
		"start_date": {"type": "parameter"},
		"period": {"type": "formula", "expression": "MONTH(start_date) & \" \" & YEAR(start_date)"}
	}
}`

func (s *GeneratorSuite) writeTemplate(dir string) string {
	path := filepath.Join(dir, "template.xlsx")
	f := excelize.NewFile()
	sheet := "Sheet1"
	s.Require().NoError(f.SetCellValue(sheet, "A1", "{{title}}"))
	s.Require().NoError(f.SetCellValue(sheet, "B1", "Период: {{period}}"))
	s.Require().NoError(f.SetCellValue(sheet, "A3", "{{data_records.0.NUM}}"))
	s.Require().NoError(f.SetCellValue(sheet, "B3", "{{data_records.0.NAME}}"))
	s.Require().NoError(f.SaveAs(path))
	return path
}

func (s *GeneratorSuite) TestFullPipeline() {
	tmpDir := s.T().TempDir()
	tmpl := s.writeTemplate(tmpDir)
	out := filepath.Join(tmpDir, "out.xlsx")

	def, err := reportgen.ParseFormula(strings.NewReader(pipelineFormula))
	s.Require().NoError(err)

	ds := &fakeSource{results: map[string]interface{}{
		"records": []map[string]interface{}{
			{"NUM": 1.0, "NAME": "A"},
			{"NUM": 2.0, "NAME": "B"},
		},
	}}
	gen := reportgen.NewGenerator(def, ds, nil)

	res, err := gen.Generate(context.Background(), tmpl, out, map[string]interface{}{
		"start_date": "2025-10-01",
	})
	s.Require().NoError(err)
	s.Assert().Equal(out, res.OutputPath)
	s.Assert().True(res.Validation.OK(), res.Validation.Summary())

	// месяц выведен из start_date и подставлен в SQL
	s.Require().Len(ds.seen, 1)
	s.Assert().Contains(ds.seen[0], "m = '10'")

	result, err := excelize.OpenFile(out)
	s.Require().NoError(err)
	defer result.Close()

	v, _ := result.GetCellValue("Sheet1", "A1")
	s.Assert().Equal("Сводный отчёт", v)
	v, _ = result.GetCellValue("Sheet1", "B1")
	s.Assert().Equal("Период: 10 2025", v)
	v, _ = result.GetCellValue("Sheet1", "A4")
	s.Assert().Equal("1", v)
	v, _ = result.GetCellValue("Sheet1", "B4")
	s.Assert().Equal("A", v)
	v, _ = result.GetCellValue("Sheet1", "B5")
	s.Assert().Equal("B", v)
}

func (s *GeneratorSuite) TestRunWithoutDataSource() {
	tmpDir := s.T().TempDir()
	tmpl := s.writeTemplate(tmpDir)
	out := filepath.Join(tmpDir, "out.xlsx")

	def, err := reportgen.ParseFormula(strings.NewReader(pipelineFormula))
	s.Require().NoError(err)

	gen := reportgen.NewGenerator(def, nil, nil)
	res, err := gen.Generate(context.Background(), tmpl, out, map[string]interface{}{
		"start_date": "2025-10-01",
	})
	// прогон без базы собирается: константы и формулы на месте,
	// секция нулевой длины, диагностика не пуста
	s.Require().NoError(err)
	s.Assert().NotEmpty(res.Diags.Warnings())

	result, err := excelize.OpenFile(out)
	s.Require().NoError(err)
	defer result.Close()
	v, _ := result.GetCellValue("Sheet1", "A1")
	s.Assert().Equal("Сводный отчёт", v)
}

func (s *GeneratorSuite) TestDefaultOutputPath() {
	now := time.Date(2025, 10, 15, 9, 30, 0, 0, time.UTC)
	got := reportgen.DefaultOutputPath("/tmp/шаблон.xlsx", now)
	s.Assert().Equal("/tmp/report_шаблон_20251015_093000.xlsx", got)
}

func (s *GeneratorSuite) TestBrokenTemplatePath() {
	def, err := reportgen.ParseFormula(strings.NewReader(pipelineFormula))
	s.Require().NoError(err)
	gen := reportgen.NewGenerator(def, nil, nil)
	_, err = gen.Generate(context.Background(), "/нет/такого/файла.xlsx", "", nil)
	s.Require().Error(err)
}
