package datafeed

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

var DB *sql.DB

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func InitDatabase() error {
	config := DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"), // Required - no default
		DBName:   getEnvOrDefault("DB_NAME", "optionsmith"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	var err error
	DB, err = sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err = initializeSchema(); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	fmt.Println("Database connected successfully!")
	return nil
}

// initializeSchema creates the run-history tables if they don't exist
func initializeSchema() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id SERIAL PRIMARY KEY,
		as_of DATE NOT NULL,
		stress_level TEXT NOT NULL,
		stress_proxy REAL NOT NULL,
		candidates INTEGER NOT NULL,
		ready_now INTEGER NOT NULL,
		matured INTEGER NOT NULL DEFAULT 0,
		summary JSONB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stage_snapshots (
		id SERIAL PRIMARY KEY,
		run_id INTEGER NOT NULL REFERENCES pipeline_runs(id),
		stage TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		column_count INTEGER NOT NULL,
		payload JSONB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS candidate_outcomes (
		id SERIAL PRIMARY KEY,
		run_id INTEGER NOT NULL REFERENCES pipeline_runs(id),
		instrument TEXT NOT NULL,
		strategy TEXT NOT NULL,
		status TEXT NOT NULL,
		quality_score REAL NOT NULL,
		score_class TEXT NOT NULL DEFAULT '',
		reasons JSONB
	);

	CREATE TABLE IF NOT EXISTS selections (
		id SERIAL PRIMARY KEY,
		run_id INTEGER NOT NULL REFERENCES pipeline_runs(id),
		instrument TEXT NOT NULL,
		strategy TEXT NOT NULL,
		contract_symbol TEXT NOT NULL,
		contracts_to_open INTEGER NOT NULL,
		allocated_usd TEXT NOT NULL,
		strategy_rationale TEXT NOT NULL,
		contract_rationale TEXT NOT NULL,
		liquidity_rationale TEXT NOT NULL,
		capital_rationale TEXT NOT NULL,
		competitor_rationale TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_as_of ON pipeline_runs(as_of);
	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON candidate_outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_selections_run ON selections(run_id);
	`

	_, err := DB.Exec(schemaSQL)
	return err
}

func CloseDatabase() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
