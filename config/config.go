package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config — настройки генератора отчётов: пути к шаблону и формуле,
// подключение к базе и параметры запуска по умолчанию.
type Config struct {
	Report     ReportConfig
	Database   DatabaseConfig
	Parameters map[string]interface{}
}

type ReportConfig struct {
	Template string
	Formula  string
	Output   string
}

// DatabaseConfig описывает источник данных. Driver выбирает реализацию:
// "postgres" — пул pgx, "firebird" — текстовый isql-клиент, пусто —
// без источника (запросы дают пустые результаты).
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// IsqlPath — путь к бинарю isql для firebird.
	IsqlPath string
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		DBName:   "reports",
		SSLMode:  "disable",
		IsqlPath: "isql-fb",
	}
}

// Load читает config.yaml из configPath с перекрытием переменными
// окружения вида REPORTGEN_DATABASE_PASSWORD. Отсутствие файла не
// ошибка: работаем на умолчаниях и окружении.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database:   DefaultDatabaseConfig(),
		Parameters: map[string]interface{}{},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("REPORTGEN")

	v.BindEnv("report.template", "REPORTGEN_TEMPLATE")
	v.BindEnv("report.formula", "REPORTGEN_FORMULA")
	v.BindEnv("report.output", "REPORTGEN_OUTPUT")
	v.BindEnv("database.driver", "REPORTGEN_DATABASE_DRIVER")
	v.BindEnv("database.host", "REPORTGEN_DATABASE_HOST")
	v.BindEnv("database.port", "REPORTGEN_DATABASE_PORT")
	v.BindEnv("database.user", "REPORTGEN_DATABASE_USER")
	v.BindEnv("database.password", "REPORTGEN_DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "REPORTGEN_DATABASE_DBNAME")
	v.BindEnv("database.sslmode", "REPORTGEN_DATABASE_SSLMODE")
	v.BindEnv("database.isql_path", "REPORTGEN_DATABASE_ISQL_PATH")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("чтение конфигурации: %w", err)
		}
	}

	if v.IsSet("report.template") {
		cfg.Report.Template = v.GetString("report.template")
	}
	if v.IsSet("report.formula") {
		cfg.Report.Formula = v.GetString("report.formula")
	}
	if v.IsSet("report.output") {
		cfg.Report.Output = v.GetString("report.output")
	}
	if v.IsSet("database.driver") {
		cfg.Database.Driver = v.GetString("database.driver")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.isql_path") {
		cfg.Database.IsqlPath = v.GetString("database.isql_path")
	}
	if v.IsSet("parameters") {
		for k, val := range v.GetStringMap("parameters") {
			cfg.Parameters[k] = val
		}
	}

	return cfg, nil
}
