package persistence

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	DriverMysql  = "mysql"
	DriverSqlite = "sqlite3"
)

type DatabaseConfig struct {
	DriverType string
	DriverArgs string
}

// NewDatabaseConfig normalises the driver arguments. SQLite connections always start
// transactions with BEGIN IMMEDIATE so writers are serialised.
func NewDatabaseConfig(driver, args string) (*DatabaseConfig, error) {
	switch driver {
	case DriverMysql:
		if _, err := mysql.ParseDSN(args); err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		return &DatabaseConfig{DriverType: driver, DriverArgs: args}, nil
	case DriverSqlite:
		return &DatabaseConfig{DriverType: driver, DriverArgs: sqliteArgs(args)}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver '%s'", driver)
	}
}

func sqliteArgs(args string) string {
	if !strings.HasPrefix(args, "file:") {
		args = "file:" + args
	}
	params := []string{"_txlock=immediate", "_busy_timeout=5000", "_foreign_keys=1"}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(args, key) {
			continue
		}
		if strings.Contains(args, "?") {
			args += "&" + p
		} else {
			args += "?" + p
		}
	}
	return args
}

// PrepareMysqlDatabase creates the database named in the dsn if it does not exist.
func PrepareMysqlDatabase(driverArgs string) error {
	cfg, err := mysql.ParseDSN(driverArgs)
	if err != nil {
		return err
	}
	databaseName := cfg.DBName
	cfg.DBName = ""

	db, err := sql.Open(DriverMysql, cfg.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("CREATE DATABASE IF NOT EXISTS `" + databaseName + "` DEFAULT CHARACTER SET utf8mb4")
	return err
}
