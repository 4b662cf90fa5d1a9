package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// sessionRecord is the database row behind GormVault. Roles are stored as a
// comma-joined list; role names never contain commas.
type sessionRecord struct {
	TerminalID         string    `gorm:"primaryKey;size:128"`
	UserID             string    `gorm:"size:64;not null"`
	Name               string    `gorm:"size:256"`
	Email              string    `gorm:"size:256"`
	Roles              string    `gorm:"size:1024"`
	SealedRefreshToken string    `gorm:"size:2048;not null"`
	SavedAt            time.Time `gorm:"index;not null"`
	UpdatedAt          time.Time
}

func (sessionRecord) TableName() string { return "console_sessions" }

type GormVault struct {
	db *gorm.DB
}

// OpenDatabase dials the configured driver. sqlite serves single terminals,
// postgres serves shared installs.
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported vault database driver %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
}

func NewGormVault(db *gorm.DB) (*GormVault, error) {
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate session vault: %w", err)
	}
	return &GormVault{db: db}, nil
}

func (v *GormVault) Put(ctx context.Context, rec *Record) error {
	row := sessionRecord{
		TerminalID:         rec.TerminalID,
		UserID:             rec.UserID,
		Name:               rec.Name,
		Email:              rec.Email,
		Roles:              strings.Join(rec.Roles, ","),
		SealedRefreshToken: rec.SealedRefreshToken,
		SavedAt:            rec.SavedAt,
	}
	return v.db.WithContext(ctx).Save(&row).Error
}

func (v *GormVault) Get(ctx context.Context, terminalID string) (*Record, error) {
	var row sessionRecord
	err := v.db.WithContext(ctx).Where("terminal_id = ?", terminalID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	rec := &Record{
		TerminalID:         row.TerminalID,
		UserID:             row.UserID,
		Name:               row.Name,
		Email:              row.Email,
		SealedRefreshToken: row.SealedRefreshToken,
		SavedAt:            row.SavedAt,
	}
	if row.Roles != "" {
		rec.Roles = strings.Split(row.Roles, ",")
	}
	return rec, nil
}

func (v *GormVault) Delete(ctx context.Context, terminalID string) error {
	return v.db.WithContext(ctx).Where("terminal_id = ?", terminalID).Delete(&sessionRecord{}).Error
}
