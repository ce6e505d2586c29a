package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN renders the go-sql-driver connection string.
func (c Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// User and Log mirror the postgres schema for MySQL deployments.
type User struct {
	ID        uint64    `gorm:"primaryKey"`
	FullName  string    `gorm:"size:255;not null"`
	Email     string    `gorm:"size:255;not null;uniqueIndex"`
	Role      string    `gorm:"size:64;not null;default:viewer;index"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
}

type Log struct {
	ID        uint64    `gorm:"primaryKey"`
	UserID    *uint64   `gorm:"index"`
	User      *User     `gorm:"constraint:OnDelete:SET NULL"`
	Action    string    `gorm:"size:128;not null"`
	Subject   *string   `gorm:"size:128;index"`
	Details   *string   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;index"`
}

// OpenMySQL opens a gorm connection and tunes its pool.
func OpenMySQL(config Config) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(config.MySQLDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access mysql pool: %w", err)
	}
	maxConns := int(config.MaxConns)
	if maxConns <= 0 {
		maxConns = 5
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return gdb, nil
}

// AutoMigrateMySQL creates the users and logs tables.
func AutoMigrateMySQL(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&User{}, &Log{}); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}
	return nil
}
