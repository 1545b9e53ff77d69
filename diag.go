package reportgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Диагностика одного прогона генерации отчёта. Ошибки этапов не роняют
// прогон целиком, а накапливаются здесь и попадают в журнал и в итоговый
// отчёт валидации.

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Этапы конвейера для привязки диагностик.
const (
	StageQuery     = "query"
	StageNormalize = "normalize"
	StageResolve   = "resolve"
	StageScan      = "scan"
	StageRender    = "render"
	StageValidate  = "validate"
)

// Diagnostic — одно сообщение: этап, предмет (запрос, переменная,
// плейсхолдер) и текст.
type Diagnostic struct {
	Stage    string
	Subject  string
	Message  string
	Severity Severity
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s: %s", d.Severity, d.Stage, d.Subject, d.Message)
}

// Diagnostics — накопитель диагностик одного прогона.
type Diagnostics struct {
	RunID   uuid.UUID
	entries []Diagnostic
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{RunID: uuid.New()}
}

func (d *Diagnostics) Add(sev Severity, stage, subject, message string) {
	d.entries = append(d.entries, Diagnostic{
		Stage:    stage,
		Subject:  subject,
		Message:  message,
		Severity: sev,
	})
}

// Entries возвращает копию всех накопленных диагностик.
func (d *Diagnostics) Entries() []Diagnostic {
	out := make([]Diagnostic, len(d.entries))
	copy(out, d.entries)
	return out
}

// Warnings возвращает диагностики уровня warning и выше.
func (d *Diagnostics) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, e := range d.entries {
		if e.Severity >= SeverityWarning {
			out = append(out, e)
		}
	}
	return out
}
