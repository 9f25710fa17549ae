// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// dialect はマイグレーションファイルのディレクトリ名。
type dialect string

const (
	dialectPostgres dialect = "postgres"
	dialectSQLite   dialect = "sqlite"
)

func newSource(d dialect) (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+string(d))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration source: %w", d, err)
	}
	return src, nil
}

// NewMigrator はPostgreSQL向けのmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := newSource(dialectPostgres)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations はPostgreSQLにすべての未適用マイグレーションを適用する。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	return up(m)
}

// RunSQLiteMigrations は開いているSQLite接続にマイグレーションを適用する。
// インメモリDBでも同じ接続上にスキーマを作るため、URLではなく*sql.DBを受け取る。
// 接続はmigrateに閉じさせない。
func RunSQLiteMigrations(db *sql.DB) error {
	src, err := newSource(dialectSQLite)
	if err != nil {
		return err
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialectSQLite), driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	return up(m)
}

// up は未適用のマイグレーションを適用する。最新の場合は何もしない。
// dirtyな状態で止まっている場合は、手動での修復が必要なことをエラーで伝える。
func up(m *migrate.Migrate) error {
	err := m.Up()
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	var dirty migrate.ErrDirty
	if errors.As(err, &dirty) {
		return fmt.Errorf("database is in a dirty state at version %d, fix it manually and force the version: %w", dirty.Version, err)
	}
	return fmt.Errorf("failed to run migrations: %w", err)
}
