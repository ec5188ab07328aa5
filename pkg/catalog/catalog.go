// Package catalog is the local setlist database.
//
// Setlists and their songs are the engine's schedule: the preload
// scheduler reads upcoming performances from here, and performance mode
// pins the active setlist's content in the cache. The catalog supports
// SQLite for single-device use (the default) and PostgreSQL for shared
// band setups, through the same GORM codebase.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gigsync/gigsync/internal/logger"
)

// ErrSetlistNotFound is returned when a setlist ID doesn't exist.
var ErrSetlistNotFound = errors.New("setlist not found")

// DatabaseType defines the supported database backends.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses SQLite (single device, default).
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres uses PostgreSQL (shared band catalog).
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the database file.
	// Default: $XDG_CONFIG_HOME/gigsync/catalog.db
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string `mapstructure:"host" json:"host" yaml:"host"`
	Port         int    `mapstructure:"port" json:"port" yaml:"port"`
	Database     string `mapstructure:"database" json:"database" yaml:"database"`
	User         string `mapstructure:"user" json:"user" yaml:"user"`
	Password     string `mapstructure:"password" json:"password,omitempty" yaml:"password,omitempty"`
	SSLMode      string `mapstructure:"ssl_mode" json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"` // disable, require, verify-ca, verify-full
	MaxOpenConns int    `mapstructure:"max_open_conns" json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config contains catalog database configuration.
type Config struct {
	Type     DatabaseType   `mapstructure:"type" json:"type" yaml:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `mapstructure:"postgres" json:"postgres,omitempty" yaml:"postgres,omitempty"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}

	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, _ := os.UserHomeDir()
			configDir = filepath.Join(homeDir, ".config")
		}
		c.SQLite.Path = filepath.Join(configDir, "gigsync", "catalog.db")
	}

	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// Catalog is the setlist database. Schema is created via AutoMigrate on
// open.
type Catalog struct {
	db *gorm.DB
}

// New opens (or creates) the catalog described by config.
func New(config *Config) (*Catalog, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
		// WAL keeps readers unblocked during writes; the busy timeout
		// covers short writer overlap from the API and the scheduler
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run catalog migration: %w", err)
	}

	logger.Info("Catalog ready", "backend", string(config.Type))

	return &Catalog{db: db}, nil
}

// DB returns the underlying GORM connection. Useful for tests.
func (c *Catalog) DB() *gorm.DB {
	return c.db
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSetlist stores a setlist with its songs. IDs are generated for the
// setlist and any song missing one. Song positions are normalized to their
// slice order.
func (c *Catalog) CreateSetlist(ctx context.Context, s *Setlist) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for i := range s.Songs {
		if s.Songs[i].ID == "" {
			s.Songs[i].ID = uuid.NewString()
		}
		s.Songs[i].SetlistID = s.ID
		s.Songs[i].Position = i
	}

	if err := c.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("failed to create setlist: %w", err)
	}
	return nil
}

// GetSetlist returns a setlist with its songs in position order.
func (c *Catalog) GetSetlist(ctx context.Context, id string) (*Setlist, error) {
	var s Setlist
	err := c.db.WithContext(ctx).
		Preload("Songs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSetlistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load setlist %s: %w", id, err)
	}
	return &s, nil
}

// ListSetlists returns all setlists (without songs), soonest performance
// first.
func (c *Catalog) ListSetlists(ctx context.Context) ([]Setlist, error) {
	var lists []Setlist
	if err := c.db.WithContext(ctx).Order("performance_at ASC").Find(&lists).Error; err != nil {
		return nil, fmt.Errorf("failed to list setlists: %w", err)
	}
	return lists, nil
}

// UpcomingSetlists returns setlists with songs whose performance time is at
// or after now, soonest first. This is the preload warm-up working set.
func (c *Catalog) UpcomingSetlists(ctx context.Context, now time.Time) ([]Setlist, error) {
	var lists []Setlist
	err := c.db.WithContext(ctx).
		Preload("Songs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("performance_at >= ?", now).
		Order("performance_at ASC").
		Find(&lists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming setlists: %w", err)
	}
	return lists, nil
}

// UpdateSetlist saves changed setlist fields (not songs).
func (c *Catalog) UpdateSetlist(ctx context.Context, s *Setlist) error {
	result := c.db.WithContext(ctx).Model(&Setlist{}).Where("id = ?", s.ID).
		Updates(map[string]any{
			"name":           s.Name,
			"venue":          s.Venue,
			"performance_at": s.PerformanceAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update setlist %s: %w", s.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSetlistNotFound
	}
	return nil
}

// ReplaceSongs swaps a setlist's songs for the given ordered list.
func (c *Catalog) ReplaceSongs(ctx context.Context, setlistID string, songs []Song) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Setlist{}).Where("id = ?", setlistID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrSetlistNotFound
		}

		if err := tx.Where("setlist_id = ?", setlistID).Delete(&Song{}).Error; err != nil {
			return fmt.Errorf("failed to clear songs: %w", err)
		}
		for i := range songs {
			if songs[i].ID == "" {
				songs[i].ID = uuid.NewString()
			}
			songs[i].SetlistID = setlistID
			songs[i].Position = i
		}
		if len(songs) == 0 {
			return nil
		}
		if err := tx.Create(&songs).Error; err != nil {
			return fmt.Errorf("failed to insert songs: %w", err)
		}
		return nil
	})
}

// DeleteSetlist removes a setlist and its songs.
func (c *Catalog) DeleteSetlist(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("setlist_id = ?", id).Delete(&Song{}).Error; err != nil {
			return fmt.Errorf("failed to delete songs: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&Setlist{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete setlist %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrSetlistNotFound
		}
		return nil
	})
}

// SetActive marks one setlist as the active performance and clears the
// flag everywhere else. Passing an empty ID just clears performance mode.
func (c *Catalog) SetActive(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Setlist{}).Where("active = ?", true).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to clear active setlist: %w", err)
		}
		if id == "" {
			return nil
		}

		result := tx.Model(&Setlist{}).Where("id = ?", id).Update("active", true)
		if result.Error != nil {
			return fmt.Errorf("failed to activate setlist %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrSetlistNotFound
		}
		return nil
	})
}

// ActiveSetlist returns the setlist in performance mode, or nil.
func (c *Catalog) ActiveSetlist(ctx context.Context) (*Setlist, error) {
	var s Setlist
	err := c.db.WithContext(ctx).
		Preload("Songs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&s, "active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active setlist: %w", err)
	}
	return &s, nil
}
