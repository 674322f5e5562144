package config

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

// GetDB returns the process-wide connection installed by ConnectDatabaseWithRetry or SetDB.
func GetDB() *gorm.DB {
	return db
}

// SetDB installs the shared connection. Used by tests and the migration CLI.
func SetDB(conn *gorm.DB) {
	db = conn
}

// ConnectDatabaseWithRetry opens MySQL with exponential backoff (capped at 30s) and
// installs the result as the shared connection.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry(s DatabaseSettings) (*gorm.DB, error) {
	var attempt int
	for {
		attempt++
		conn, err := gorm.Open(mysql.Open(s.DSN()), initConfig())
		if err == nil {
			tunePool(conn, s)
			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			log.Printf("connected to database (attempt=%d)", attempt)
			SetDB(conn)
			return conn, nil
		}

		if s.ConnectAttempts > 0 && attempt >= s.ConnectAttempts {
			return nil, err
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func tunePool(conn *gorm.DB, s DatabaseSettings) {
	sqlDB, err := conn.DB()
	if err != nil || sqlDB == nil {
		return
	}
	if s.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(s.MaxOpenConns)
	}
	if s.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(s.MaxIdleConns)
	}
	if s.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(s.ConnMaxLifetime)
	}
	if s.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(s.ConnMaxIdleTime)
	}
}

// GormConfig is shared by the server, the CLI and tests.
func GormConfig() *gorm.Config {
	return initConfig()
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         writeGormLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

// GORM_LOG=<file> switches to full SQL logging into that file.
func writeGormLog() logger.Interface {
	logFile := os.Getenv("GORM_LOG")
	if logFile == "" {
		return initLog()
	}
	f, err := os.Create(logFile)
	if err != nil {
		return initLog()
	}
	return logger.New(log.New(io.MultiWriter(f), "\r\n", log.LstdFlags), logger.Config{
		Colorful:      false,
		LogLevel:      logger.Info,
		SlowThreshold: time.Second,
	})
}
