package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type sessionRow struct {
	SessionKey  string         `gorm:"column:session_key;primaryKey;size:16"`
	Version     int            `gorm:"not null;default:0"`
	Document    datatypes.JSON `gorm:"not null"`
	Credentials datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (sessionRow) TableName() string { return "draft_sessions" }

// Gorm stores each session as one row holding the JSON document.
type Gorm struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the sessions table.
func OpenPostgres(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	return NewGorm(db)
}

func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Create(ctx context.Context, rec Record) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return ErrExists
		}
		return fmt.Errorf("store: create %s: %w", rec.Key(), err)
	}
	return nil
}

func (g *Gorm) Get(ctx context.Context, key string) (Record, error) {
	var row sessionRow
	err := g.db.WithContext(ctx).Where("session_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get %s: %w", key, err)
	}
	return fromRow(row)
}

func (g *Gorm) Save(ctx context.Context, rec Record) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	res := g.db.WithContext(ctx).Model(&sessionRow{}).
		Where("session_key = ?", rec.Key()).
		Updates(map[string]any{
			"version":     row.Version,
			"document":    row.Document,
			"credentials": row.Credentials,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("store: save %s: %w", rec.Key(), res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) Delete(ctx context.Context, key string) error {
	res := g.db.WithContext(ctx).Where("session_key = ?", key).Delete(&sessionRow{})
	if res.Error != nil {
		return fmt.Errorf("store: delete %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(rec Record) (sessionRow, error) {
	doc, err := json.Marshal(rec.Session)
	if err != nil {
		return sessionRow{}, fmt.Errorf("store: encode session: %w", err)
	}
	creds, err := json.Marshal(rec.Credentials)
	if err != nil {
		return sessionRow{}, fmt.Errorf("store: encode credentials: %w", err)
	}
	return sessionRow{
		SessionKey:  rec.Key(),
		Version:     rec.Version,
		Document:    datatypes.JSON(doc),
		Credentials: datatypes.JSON(creds),
	}, nil
}

func fromRow(row sessionRow) (Record, error) {
	var rec Record
	if err := json.Unmarshal(row.Document, &rec.Session); err != nil {
		return Record{}, fmt.Errorf("store: decode session %s: %w", row.SessionKey, err)
	}
	if err := json.Unmarshal(row.Credentials, &rec.Credentials); err != nil {
		return Record{}, fmt.Errorf("store: decode credentials %s: %w", row.SessionKey, err)
	}
	rec.Version = row.Version
	return rec, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	// 23505 is unique_violation
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
