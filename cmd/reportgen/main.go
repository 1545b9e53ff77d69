package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nikitaxru/reportgen"
	"github.com/nikitaxru/reportgen/config"
	"github.com/nikitaxru/reportgen/isql"
	"github.com/nikitaxru/reportgen/postgres"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run отделён от main ради тестируемости: весь вывод идёт в outW,
// ошибки возвращаются, коды выхода остаются в main.
func run(outW io.Writer, args []string) error {
	fs := flag.NewFlagSet("reportgen", flag.ContinueOnError)
	fs.SetOutput(outW)
	var (
		configPath   = fs.String("config", ".", "каталог с config.yaml")
		formulaPath  = fs.String("formula", "", "путь к JSON-формуле отчёта")
		templatePath = fs.String("template", "", "путь к xlsx-шаблону")
		outputPath   = fs.String("output", "", "путь к выходному файлу (по умолчанию рядом с шаблоном)")
		paramFlags   multiFlag
	)
	fs.Var(&paramFlags, "param", "параметр запуска вида имя=значение, можно повторять")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *formulaPath != "" {
		cfg.Report.Formula = *formulaPath
	}
	if *templatePath != "" {
		cfg.Report.Template = *templatePath
	}
	if *outputPath != "" {
		cfg.Report.Output = *outputPath
	}
	if cfg.Report.Formula == "" || cfg.Report.Template == "" {
		return fmt.Errorf("нужны и формула, и шаблон: -formula и -template (или config.yaml)")
	}

	params := map[string]interface{}{}
	for k, v := range cfg.Parameters {
		params[k] = v
	}
	for _, p := range paramFlags {
		name, val, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("параметр %q не в форме имя=значение", p)
		}
		params[name] = val
	}

	def, err := reportgen.LoadFormula(cfg.Report.Formula)
	if err != nil {
		return err
	}

	ctx := context.Background()
	ds, err := openDataSource(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if ds != nil {
		defer ds.Close()
	}

	gen := reportgen.NewGenerator(def, ds, slog.Default())
	res, err := gen.Generate(ctx, cfg.Report.Template, cfg.Report.Output, params)
	if err != nil {
		return err
	}

	fmt.Fprintln(outW, res.Validation.Summary())
	fmt.Fprintf(outW, "Файл: %s\n", res.OutputPath)
	return nil
}

// openDataSource выбирает реализацию по драйверу. Пустой драйвер —
// прогон без базы: запросы дают пустые результаты, но отчёт с
// константами и формулами всё равно собирается.
func openDataSource(ctx context.Context, db config.DatabaseConfig) (reportgen.DataSource, error) {
	switch db.Driver {
	case "":
		return nil, nil
	case "postgres":
		return postgres.Connect(ctx, postgres.Config{
			Host:     db.Host,
			Port:     db.Port,
			User:     db.User,
			Password: db.Password,
			DBName:   db.DBName,
			SSLMode:  db.SSLMode,
		})
	case "firebird":
		return isql.New(isql.Config{
			BinPath:  db.IsqlPath,
			Database: fmt.Sprintf("%s:%s", db.Host, db.DBName),
			User:     db.User,
			Password: db.Password,
		}), nil
	default:
		return nil, fmt.Errorf("неизвестный драйвер %q", db.Driver)
	}
}

// multiFlag накапливает повторяющиеся значения флага.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
