// Package isql выполняет запросы к Firebird через внешний клиент isql и
// разбирает его текстовый вывод фиксированной ширины.
package isql

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Config — параметры подключения isql-клиента.
type Config struct {
	// BinPath — путь к бинарю isql (обычно isql-fb).
	BinPath  string
	Database string // host:путь_к_базе
	User     string
	Password string
	Charset  string
}

// Source — источник данных через подпроцесс isql. Каждый запрос — один
// запуск клиента: скрипт во временном файле, вывод в файл, затем разбор.
type Source struct {
	cfg Config
}

func New(cfg Config) *Source {
	if cfg.BinPath == "" {
		cfg.BinPath = "isql-fb"
	}
	if cfg.Charset == "" {
		cfg.Charset = "UTF8"
	}
	return &Source{cfg: cfg}
}

// ExecuteQuery выполняет SQL и возвращает вывод в форме
// map{"headers": []string, "rows": [][]interface{}}, которую понимает
// нормализатор.
func (s *Source) ExecuteQuery(ctx context.Context, sql string) (interface{}, error) {
	dir, err := os.MkdirTemp("", "isql-*")
	if err != nil {
		return nil, fmt.Errorf("временный каталог: %w", err)
	}
	defer os.RemoveAll(dir)

	scriptPath := filepath.Join(dir, "query.sql")
	outPath := filepath.Join(dir, "out.txt")

	script := strings.TrimRight(strings.TrimSpace(sql), ";") + ";\nEXIT;\n"
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return nil, fmt.Errorf("запись скрипта: %w", err)
	}

	args := []string{
		s.cfg.Database,
		"-user", s.cfg.User,
		"-password", s.cfg.Password,
		"-charset", s.cfg.Charset,
		"-input", scriptPath,
		"-output", outPath,
	}
	cmd := exec.CommandContext(ctx, s.cfg.BinPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("isql: %w: %s", err, strings.TrimSpace(string(out)))
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("чтение вывода: %w", err)
	}
	return ParseOutput(string(raw))
}

func (s *Source) Close() {}

// ParseOutput разбирает табличный вывод isql. Формат: строка
// заголовков, под ней разделитель из групп "=", ниже строки данных.
// Границы колонок задают группы разделителя, значения режутся по этим
// же позициям.
func ParseOutput(out string) (interface{}, error) {
	lines := strings.Split(out, "\n")

	sepIdx := -1
	for i, line := range lines {
		if isSeparator(line) {
			sepIdx = i
			break
		}
	}
	if sepIdx <= 0 {
		// Запрос без результата (DML, пустой вывод).
		return map[string]interface{}{
			"headers": []interface{}{},
			"rows":    []interface{}{},
		}, nil
	}

	spans := columnSpans(lines[sepIdx])
	if len(spans) == 0 {
		return nil, fmt.Errorf("разделитель без колонок: %q", lines[sepIdx])
	}

	headerLine := lines[sepIdx-1]
	headers := make([]interface{}, len(spans))
	for i, sp := range spans {
		headers[i] = strings.TrimSpace(slice(headerLine, sp[0], spanEnd(spans, i)))
	}

	var rows []interface{}
	for _, line := range lines[sepIdx+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if isSeparator(line) {
			// Повтор заголовка при постраничном выводе.
			continue
		}
		row := make([]interface{}, len(spans))
		for i, sp := range spans {
			cell := strings.TrimSpace(slice(line, sp[0], spanEnd(spans, i)))
			if cell == "<null>" {
				row[i] = nil
			} else {
				row[i] = cell
			}
		}
		rows = append(rows, row)
	}
	if rows == nil {
		rows = []interface{}{}
	}

	return map[string]interface{}{
		"headers": headers,
		"rows":    rows,
	}, nil
}

// isSeparator — строка состоит только из "=" и пробелов и содержит
// хотя бы один "=".
func isSeparator(line string) bool {
	seen := false
	for _, r := range line {
		switch r {
		case '=':
			seen = true
		case ' ', '\t', '\r':
		default:
			return false
		}
	}
	return seen
}

// columnSpans возвращает полуинтервалы [start, end) групп "=" в строке
// разделителя. Позиции считаются в рунах: вывод isql выровнен по
// экранным колонкам, и кириллица в данных не должна сдвигать срезы.
func columnSpans(sep string) [][2]int {
	var spans [][2]int
	start := -1
	runes := []rune(sep)
	for i, r := range runes {
		if r == '=' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			spans = append(spans, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, [2]int{start, len(runes)})
	}
	return spans
}

// spanEnd — конец колонки i. Последняя колонка дотягивается до конца
// строки, значения длиннее разделителя не теряются.
func spanEnd(spans [][2]int, i int) int {
	if i == len(spans)-1 {
		return 1 << 30
	}
	return spans[i][1]
}

// slice вырезает диапазон рун с защитой от коротких строк.
func slice(line string, start, end int) string {
	runes := []rune(line)
	if start >= len(runes) {
		return ""
	}
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end])
}
