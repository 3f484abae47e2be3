package testinfra

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"printflow/persistence"
	"strings"

	"github.com/google/uuid"
)

type TestDatabase struct {
	TestDatabaseName string
	DS               *persistence.DataSourceManager

	sqliteDir string
}

// StartTestDatabase creates an isolated database: a MySQL schema when TEST_MYSQL_SERVICE
// (e.g. root:root@(127.0.0.1:3306)) is set, a temporary SQLite file otherwise.
func StartTestDatabase(baseName string) *TestDatabase {
	databaseName := baseName + "_test_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	mysqlSvc := os.Getenv("TEST_MYSQL_SERVICE")
	if mysqlSvc != "" {
		return startMysqlTestDatabase(mysqlSvc, databaseName)
	}

	dir, err := os.MkdirTemp("", databaseName)
	if err != nil {
		log.Fatalf("failed to create test database dir %v\n", err)
	}
	dbConfig, err := persistence.NewDatabaseConfig(persistence.DriverSqlite, filepath.Join(dir, databaseName+".db"))
	if err != nil {
		log.Fatalf("invalid test database config %v\n", err)
	}
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		defer ds.Stop()
		log.Fatalf("database conneciton failed %v\n", err)
	}
	return &TestDatabase{TestDatabaseName: databaseName, DS: ds, sqliteDir: dir}
}

func startMysqlTestDatabase(mysqlSvc, databaseName string) *TestDatabase {
	dbConfig, err := persistence.NewDatabaseConfig(persistence.DriverMysql,
		mysqlSvc+"/"+databaseName+"?charset=utf8mb4&parseTime=True&loc=Local&timeout=5s")
	if err != nil {
		log.Fatalf("invalid test database config %v\n", err)
	}

	// create database (no conflict)
	if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
		log.Fatalf("failed to prepare database %v\n", err)
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		defer ds.Stop()
		log.Fatalf("database conneciton failed %v\n", err)
	}
	return &TestDatabase{TestDatabaseName: databaseName, DS: ds}
}

func StopTestDatabase(testDatabase *TestDatabase) {
	if testDatabase == nil || testDatabase.DS == nil {
		return
	}
	if testDatabase.sqliteDir != "" {
		testDatabase.DS.Stop()
		if err := os.RemoveAll(testDatabase.sqliteDir); err != nil {
			log.Println("failed to remove test database: " + testDatabase.TestDatabaseName)
		}
		return
	}

	if db := testDatabase.DS.GormDB(context.Background()); db != nil {
		if err := db.Exec("DROP DATABASE " + testDatabase.TestDatabaseName).Error; err != nil {
			log.Println("failed to drop test database: " + testDatabase.TestDatabaseName)
		} else {
			log.Println("test database " + testDatabase.TestDatabaseName + " dropped")
		}
	}
	testDatabase.DS.Stop()
}
