package db

import (
	"fmt"
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/zulandar/qualitygate/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN builds a MySQL DSN with parseTime enabled and UTC timestamps.
func MySQLDSN(c config.DatabaseConfig) string {
	mc := mysqldriver.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

// PostgresDSN builds a key/value PostgreSQL DSN.
func PostgresDSN(c config.DatabaseConfig) string {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s TimeZone=UTC", c.Host, c.Port, c.Name, c.SSLMode)
	if c.User != "" {
		dsn += " user=" + c.User
	}
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	return dsn
}

// Dialector returns the GORM dialector for the configured driver.
func Dialector(c config.DatabaseConfig) (gorm.Dialector, error) {
	switch c.Driver {
	case "sqlite":
		return sqlite.Open(c.Path), nil
	case "mysql":
		return mysql.Open(MySQLDSN(c)), nil
	case "postgres":
		return postgres.Open(PostgresDSN(c)), nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", c.Driver)
	}
}

// Connect opens a GORM connection for the configured database.
func Connect(c config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(c)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s: %w", describe(c), err)
	}
	if c.Driver == "sqlite" {
		// SQLite allows one writer; a single connection queues writers
		// instead of failing them with SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenSQLite opens a SQLite database at path (":memory:" or a file URI are
// accepted) with the same settings Connect uses.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	return db, nil
}

// ConnectAdmin opens a MySQL connection without selecting a database, used
// for CREATE DATABASE.
func ConnectAdmin(c config.DatabaseConfig) (*gorm.DB, error) {
	if c.Driver != "mysql" {
		return nil, fmt.Errorf("db: admin connect requires mysql, got %q", c.Driver)
	}
	admin := c
	admin.Name = ""
	db, err := gorm.Open(mysql.Open(MySQLDSN(admin)), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: admin connect to %s:%d: %w", c.Host, c.Port, err)
	}
	return db, nil
}

// CreateDatabase creates the named database if it doesn't already exist.
func CreateDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", name, err)
	}
	return nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func describe(c config.DatabaseConfig) string {
	if c.Driver == "sqlite" {
		return "sqlite " + c.Path
	}
	return fmt.Sprintf("%s %s:%d/%s", c.Driver, c.Host, c.Port, c.Name)
}
