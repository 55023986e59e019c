package database

import (
	"fmt"

	"messenger-sync/config"
	"messenger-sync/logger"
	"messenger-sync/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect opens the configured database and migrates the schema.
func Connect() {
	var err error
	switch config.Config("DB_DRIVER") {
	case "sqlite":
		DB, err = OpenSQLite(config.Config("SQLITE_PATH"))
	default:
		DB, err = OpenPostgres()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to connect database: %v", err))
	}
	logger.L().Infow("connection opened to database", "driver", DB.Dialector.Name())

	if err := Migrate(DB); err != nil {
		panic(fmt.Sprintf("failed to migrate database: %v", err))
	}
	logger.L().Info("database migrated")
}

func OpenPostgres() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		config.Config("POSTGRES_HOST"),
		config.Config("POSTGRES_PORT"),
		config.Config("POSTGRES_USER"),
		config.Config("POSTGRES_PASSWORD"),
		config.Config("POSTGRES_DB"),
	)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

// OpenSQLite opens a single-connection SQLite database. SQLite serializes
// writers, so one connection keeps transactions from tripping over each other.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Presence{},
		&model.Contact{},
		&model.Chat{},
		&model.ChatParticipant{},
		&model.UserChat{},
		&model.Message{},
		&model.MessageRead{},
	)
}
