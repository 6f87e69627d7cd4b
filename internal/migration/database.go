package migration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"autograde/internal/config"
)

// Supported gradebook drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// DefaultSQLiteFile is the gradebook file created under the output directory
const DefaultSQLiteFile = "gradebook.db"

// DatabaseManager resolves, creates, and connects to the gradebook database
type DatabaseManager struct {
	config *config.Config
}

// NewDatabaseManager creates a new DatabaseManager
func NewDatabaseManager(cfg *config.Config) *DatabaseManager {
	return &DatabaseManager{config: cfg}
}

// Driver returns the normalized driver name
func (dm *DatabaseManager) Driver() (string, error) {
	return NormalizeDriver(dm.config.Gradebook.Driver)
}

// NormalizeDriver maps driver aliases to a supported driver name
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "mariadb":
		return DriverMySQL, nil
	case "sqlite", "sqlite3", "":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported gradebook driver %q (expected mysql or sqlite)", driver)
	}
}

// DSN returns the data source name for the configured driver. An explicit DSN
// wins; otherwise MySQL settings come from DB_* variables (a .env file in the
// project is loaded first) and SQLite uses a file under the output directory.
func (dm *DatabaseManager) DSN() (string, error) {
	driver, err := dm.Driver()
	if err != nil {
		return "", err
	}

	switch driver {
	case DriverMySQL:
		dsn := dm.config.Gradebook.DSN
		if dsn == "" {
			dsn = MySQLDSNFromEnv(dm.config.ProjectPath)
		}
		// Timestamps are scanned into time.Time
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	default:
		if dm.config.Gradebook.DSN != "" {
			return dm.config.Gradebook.DSN, nil
		}
		dir := filepath.Join(dm.config.ProjectPath, dm.config.OutputJSONDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create gradebook dir: %w", err)
		}
		return filepath.Join(dir, DefaultSQLiteFile), nil
	}
}

// MySQLDSNFromEnv builds a MySQL DSN from DB_HOST, DB_PORT, DB_USERNAME,
// DB_PASSWORD and DB_DATABASE, after loading projectPath/.env if present.
func MySQLDSNFromEnv(projectPath string) string {
	envPath := filepath.Join(projectPath, ".env")
	if err := godotenv.Load(envPath); err != nil {
		// .env file might not exist, that's okay - use environment variables
		_ = err
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%s", getenv("DB_HOST", "127.0.0.1"), getenv("DB_PORT", "3306"))
	mc.User = getenv("DB_USERNAME", "root")
	mc.Passwd = os.Getenv("DB_PASSWORD")
	mc.DBName = getenv("DB_DATABASE", "autograde")
	return mc.FormatDSN()
}

// EnsureDatabase creates the MySQL database named in dsn when it does not exist.
// It is a no-op for SQLite, which creates its file on first use.
func (dm *DatabaseManager) EnsureDatabase(ctx context.Context, driver, dsn string) error {
	if driver != DriverMySQL {
		return nil
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("invalid mysql dsn: %w", err)
	}
	dbName := mc.DBName
	if dbName == "" {
		return fmt.Errorf("mysql dsn names no database")
	}

	// Connect to MySQL server (without specifying database)
	mc.DBName = ""
	db, err := sql.Open(DriverMySQL, mc.FormatDSN())
	if err != nil {
		return errors.Wrap(err, "failed to connect to database server")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "failed to ping database server")
	}

	exists, err := dm.databaseExists(ctx, db, dbName)
	if err != nil {
		return errors.Wrapf(err, "failed to check database %s", dbName)
	}
	if exists {
		return nil
	}
	if err := dm.createDatabase(ctx, db, dbName); err != nil {
		return errors.Wrapf(err, "failed to create database %s", dbName)
	}
	log.WithField("database", dbName).Info("Created gradebook database")
	return nil
}

// Connect opens the database and tunes the pool for the driver
func (dm *DatabaseManager) Connect(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", driver)
	}
	if driver == DriverSQLite {
		// SQLite should not use many concurrent writers; keep pool small.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s database", driver)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "sqlite pragmas")
		}
	}
	return db, nil
}

// databaseExists checks if a database exists
func (dm *DatabaseManager) databaseExists(ctx context.Context, db *sql.DB, dbName string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?)"
	err := db.QueryRowContext(ctx, query, dbName).Scan(&exists)
	return exists, err
}

// createDatabase creates a new database
func (dm *DatabaseManager) createDatabase(ctx context.Context, db *sql.DB, dbName string) error {
	// Sanitize database name to prevent SQL injection
	if !isValidDatabaseName(dbName) {
		return fmt.Errorf("invalid database name: %s", dbName)
	}

	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)
	_, err := db.ExecContext(ctx, query)
	return err
}

// isValidDatabaseName validates database name (basic check)
func isValidDatabaseName(name string) bool {
	if len(name) == 0 || len(name) > 64 {
		return false
	}
	// Check for SQL injection patterns
	invalidChars := []string{"'", "\"", "`", ";", "--", "/*", "*/", "DROP", "DELETE", "TRUNCATE"}
	upperName := strings.ToUpper(name)
	for _, char := range invalidChars {
		if strings.Contains(upperName, char) {
			return false
		}
	}
	return true
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
