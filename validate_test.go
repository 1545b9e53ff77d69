package reportgen_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"

	"github.com/nikitaxru/reportgen"
)

// ValidateSuite — сьют тестов валидатора плейсхолдеров
type ValidateSuite struct {
	suite.Suite
}

func TestValidateSuite(t *testing.T) {
	suite.Run(t, new(ValidateSuite))
}

func (s *ValidateSuite) scan(cells map[string]string) []reportgen.Placeholder {
	f := excelize.NewFile()
	for addr, v := range cells {
		s.Require().NoError(f.SetCellValue("Sheet1", addr, v))
	}
	phs, err := reportgen.ScanWorkbook(f)
	s.Require().NoError(err)
	return phs
}

func (s *ValidateSuite) snapshotOf(tables map[string]*reportgen.NormalizedResult, scalars map[string]interface{}) *reportgen.Snapshot {
	def := &reportgen.FormulaDefinition{}
	return reportgen.NewResolver(def, time.Now()).Resolve(tables, scalars, reportgen.NewDiagnostics())
}

func (s *ValidateSuite) TestUnknownVariableIsError() {
	phs := s.scan(map[string]string{"A1": "{{unknown_var}}"})
	rep := reportgen.Validate(phs, s.snapshotOf(nil, nil))

	s.Require().Len(rep.Errors, 1)
	s.Assert().Contains(rep.Errors[0], "unknown_var")
	s.Assert().False(rep.OK())
}

func (s *ValidateSuite) TestBlankValueIsWarning() {
	phs := s.scan(map[string]string{"A1": "{{empty_var}}"})
	rep := reportgen.Validate(phs, s.snapshotOf(nil, map[string]interface{}{"empty_var": ""}))

	s.Assert().Empty(rep.Errors)
	s.Require().Len(rep.Warnings, 1)
	s.Assert().True(rep.OK())
}

func (s *ValidateSuite) TestSectionFieldChecks() {
	table := &reportgen.NormalizedResult{
		Fields: []string{"NAME"},
		Rows:   []reportgen.Row{{"NAME": "x"}},
	}
	snap := s.snapshotOf(map[string]*reportgen.NormalizedResult{"data_records": table}, nil)

	// существующее поле — ок, несуществующее — ошибка
	phs := s.scan(map[string]string{
		"A2": "{{data_records.0.NAME}}",
		"B2": "{{data_records.0.MISSING}}",
	})
	rep := reportgen.Validate(phs, snap)
	s.Require().Len(rep.Errors, 1)
	s.Assert().Contains(rep.Errors[0], "MISSING")
	s.Assert().Len(rep.Info, 1)
}

func (s *ValidateSuite) TestEmptyTableIsInfo() {
	snap := s.snapshotOf(map[string]*reportgen.NormalizedResult{
		"data_records": {Fields: []string{"NAME"}},
	}, nil)
	phs := s.scan(map[string]string{"A2": "{{data_records.0.NAME}}"})

	rep := reportgen.Validate(phs, snap)
	s.Assert().Empty(rep.Errors)
	s.Assert().Empty(rep.Warnings)
	s.Require().Len(rep.Info, 1)
	s.Assert().Contains(rep.Info[0], "пуста")
}

func (s *ValidateSuite) TestDuplicateSectionPathIsInfo() {
	table := &reportgen.NormalizedResult{
		Fields: []string{"NAME"},
		Rows:   []reportgen.Row{{"NAME": "x"}},
	}
	snap := s.snapshotOf(map[string]*reportgen.NormalizedResult{"data_records": table}, nil)
	phs := s.scan(map[string]string{
		"A2": "{{data_records.0.NAME}}",
		"B2": "{{data_records.0.NAME}}",
	})

	rep := reportgen.Validate(phs, snap)
	s.Assert().Empty(rep.Errors)
	s.Require().Len(rep.Info, 2)
}

func (s *ValidateSuite) TestSummaryMentionsCounts() {
	phs := s.scan(map[string]string{
		"A1": "{{ok_var}}",
		"B1": "{{unknown_var}}",
	})
	rep := reportgen.Validate(phs, s.snapshotOf(nil, map[string]interface{}{"ok_var": "x"}))

	sum := rep.Summary()
	s.Assert().True(strings.Contains(sum, "ошибок: 1"), sum)
	s.Assert().Contains(sum, "unknown_var")
}
