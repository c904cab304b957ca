package persistence

import (
	"database/sql"
	"errors"
	"os"

	"github.com/go-sql-driver/mysql"
)

type DatabaseConfig struct {
	DriverType string
	DriverArgs string
}

// ParseDatabaseConfigFromEnv reads DB_DRIVER_TYPE (default mysql) and DB_DRIVER_ARGS.
func ParseDatabaseConfigFromEnv() (*DatabaseConfig, error) {
	driverType := os.Getenv("DB_DRIVER_TYPE")
	if driverType == "" {
		driverType = "mysql"
	}
	driverArgs := os.Getenv("DB_DRIVER_ARGS")
	if driverArgs == "" {
		return nil, errors.New("DB_DRIVER_ARGS is required")
	}
	return &DatabaseConfig{DriverType: driverType, DriverArgs: driverArgs}, nil
}

// PrepareMysqlDatabase creates the database named in the dsn if it does not exist.
func PrepareMysqlDatabase(dsn string) error {
	config, err := mysql.ParseDSN(dsn)
	if err != nil {
		return err
	}
	databaseName := config.DBName
	if databaseName == "" {
		return errors.New("database name is missing in dsn")
	}
	config.DBName = ""

	db, err := sql.Open("mysql", config.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("CREATE DATABASE IF NOT EXISTS `" + databaseName + "` DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci")
	return err
}
