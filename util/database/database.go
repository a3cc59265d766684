package database

import (
	"context"
	"fmt"

	"bookclub/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB owns the gorm handle and, for postgres, the pgx pool underneath it.
type DB struct {
	Gorm *gorm.DB
	Pool *pgxpool.Pool
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

// New opens a pgx pool for dsn and hands it to gorm through database/sql.
func New(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	g, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(p)}), gormConfig())
	if err != nil {
		p.Close()
		return nil, err
	}
	return &DB{Gorm: g, Pool: p}, nil
}

// NewSQLite opens a sqlite database. A single connection serialises writers;
// callers inside a transaction must only use the tx handle.
func NewSQLite(path string) (*DB, error) {
	g, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := g.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &DB{Gorm: g}, nil
}

// NewMemory opens a private, migrated in-memory sqlite database.
func NewMemory() (*DB, error) {
	d, err := NewSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Migrate() error {
	return d.Gorm.AutoMigrate(model.All()...)
}

func (d *DB) Close() {
	if sqlDB, err := d.Gorm.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// Conn returns tx when the caller is inside a transaction, otherwise base
// bound to ctx.
func Conn(ctx context.Context, base, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return base.WithContext(ctx)
}
