package testinfra

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"pneumatic/persistence"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

type TestDatabase struct {
	TestDatabaseName string
	DS               *persistence.DataSourceManager

	file string
}

// StartTestDatabase creates an isolated database: a temporary sqlite file by default,
// a fresh MySQL schema when TEST_MYSQL_SERVICE is set, e.g. TEST_MYSQL_SERVICE=root:root@(127.0.0.1:3306)
func StartTestDatabase(baseName string) *TestDatabase {
	if mysqlSvc := os.Getenv("TEST_MYSQL_SERVICE"); mysqlSvc != "" {
		return StartMysqlTestDatabase(baseName)
	}

	databaseName := baseName + "_test_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	file := filepath.Join(os.TempDir(), databaseName+".db")
	dbConfig := &persistence.DatabaseConfig{DriverType: "sqlite3", DriverArgs: file + "?_loc=auto"}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		defer ds.Stop()
		log.Fatalf("database conneciton failed %v\n", err)
	}
	return &TestDatabase{TestDatabaseName: databaseName, DS: ds, file: file}
}

func StartMysqlTestDatabase(baseName string) *TestDatabase {
	mysqlSvc := os.Getenv("TEST_MYSQL_SERVICE")
	if mysqlSvc == "" {
		mysqlSvc = "root:root@(127.0.0.1:3306)"
	}
	databaseName := baseName + "_test_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	dbConfig := &persistence.DatabaseConfig{
		DriverType: "mysql", DriverArgs: mysqlSvc + "/" + databaseName + "?charset=utf8mb4&parseTime=True&loc=Local&timeout=5s",
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
	if testDatabase.file == "" {
		if db := testDatabase.DS.GormDB(context.TODO()); db != nil {
			if err := db.Exec("DROP DATABASE " + testDatabase.TestDatabaseName).Error; err != nil {
				log.Println("failed to drop test database: " + testDatabase.TestDatabaseName)
			} else {
				log.Println("test database " + testDatabase.TestDatabaseName + " dropped")
			}
		}
	}

	// close connection
	testDatabase.DS.Stop()

	if testDatabase.file != "" {
		if err := os.Remove(testDatabase.file); err != nil {
			log.Println("failed to remove test database file: " + testDatabase.file)
		}
	}
}
