package persistence_test

import (
	"os"
	"pneumatic/persistence"
	"testing"

	. "github.com/onsi/gomega"
)

func TestParseDatabaseConfigFromEnv(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should require driver args", func(t *testing.T) {
		os.Unsetenv("DB_DRIVER_TYPE")
		os.Unsetenv("DB_DRIVER_ARGS")
		c, err := persistence.ParseDatabaseConfigFromEnv()
		Expect(c).To(BeNil())
		Expect(err).ToNot(BeNil())
	})

	t.Run("should default driver type to mysql", func(t *testing.T) {
		os.Unsetenv("DB_DRIVER_TYPE")
		os.Setenv("DB_DRIVER_ARGS", "root:root@(127.0.0.1:3306)/pneumatic")
		defer os.Unsetenv("DB_DRIVER_ARGS")

		c, err := persistence.ParseDatabaseConfigFromEnv()
		Expect(err).To(BeNil())
		Expect(*c).To(Equal(persistence.DatabaseConfig{DriverType: "mysql", DriverArgs: "root:root@(127.0.0.1:3306)/pneumatic"}))
	})

	t.Run("should reject dsn without database name", func(t *testing.T) {
		Expect(persistence.PrepareMysqlDatabase("root:root@(127.0.0.1:3306)/")).ToNot(BeNil())
	})
}
