// Package postgres реализует источник данных отчётов поверх пула pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config — параметры подключения к PostgreSQL.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func DefaultConfig() Config {
	return Config{
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "reports",
		SSLMode: "disable",
	}
}

// Source — источник данных поверх пула соединений.
type Source struct {
	pool *pgxpool.Pool
}

// Connect создаёт пул и проверяет соединение пингом. Лимиты пула
// консервативные: отчёты выполняют запросы последовательно.
func Connect(ctx context.Context, cfg Config) (*Source, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("разбор конфигурации подключения: %w", err)
	}
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Minute * 30
	poolConfig.MaxConnIdleTime = time.Minute * 5
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("создание пула: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("пинг базы: %w", err)
	}
	return &Source{pool: pool}, nil
}

// ExecuteQuery выполняет запрос и возвращает строки как список записей
// поле→значение. Имена полей приводятся к верхнему регистру, как их
// пишут формулы отчётов.
func (s *Source) ExecuteQuery(ctx context.Context, sql string) (interface{}, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("выполнение запроса: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = strings.ToUpper(fd.Name)
	}

	var out []map[string]interface{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("чтение строки: %w", err)
		}
		rec := make(map[string]interface{}, len(vals))
		for i, v := range vals {
			rec[names[i]] = v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход результата: %w", err)
	}
	return out, nil
}

func (s *Source) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
