package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	commissiondomain "github.com/draftworks/meridian/internal/commission/domain"
	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	walletdomain "github.com/draftworks/meridian/internal/wallet/domain"
	webhookdomain "github.com/draftworks/meridian/internal/webhook/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// RunMigrations applies the embedded postgres migrations so the service is
// usable out of the box without a separate migration step.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate covers the non-postgres dialects used for local development and
// tests, where the versioned SQL files do not apply.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&walletdomain.Wallet{},
		&walletdomain.WalletTransaction{},
		&commissiondomain.CommissionTier{},
		&payoutdomain.PayoutRequest{},
		&payoutdomain.PayoutProfile{},
		&webhookdomain.ProviderEventLog{},
		&auditdomain.FinancialAuditLog{},
	)
}
