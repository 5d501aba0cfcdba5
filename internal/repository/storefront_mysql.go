package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"instantin-core-api/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStorefrontDirectory reads storefront metadata out of the platform's
// MySQL database. The core never writes here.
type MySQLStorefrontDirectory struct {
	db *sql.DB
}

// NewMySQLStorefrontDirectory connects to the platform database.
// dsn format: "user:password@tcp(host:port)/dbname?parseTime=true"
func NewMySQLStorefrontDirectory(dsn string) (*MySQLStorefrontDirectory, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	log.Println("[StorefrontDirectory] Connected to platform database")
	return &MySQLStorefrontDirectory{db: db}, nil
}

// GetStorefrontInfo looks up a storefront by id. Inactive storefronts are
// treated as absent.
func (d *MySQLStorefrontDirectory) GetStorefrontInfo(ctx context.Context, storefrontID string) (*model.StorefrontInfo, error) {
	query := `
		SELECT id, owner_id, raffle_eligible
		FROM storefronts
		WHERE id = ? AND is_active = 1
		LIMIT 1`

	var info model.StorefrontInfo
	err := d.db.QueryRowContext(ctx, query, storefrontID).Scan(&info.ID, &info.OwnerID, &info.RaffleEligible)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get storefront: %w", err)
	}

	return &info, nil
}

// Close closes the database connection.
func (d *MySQLStorefrontDirectory) Close() error {
	return d.db.Close()
}

// Ensure MySQLStorefrontDirectory implements StorefrontDirectory
var _ StorefrontDirectory = (*MySQLStorefrontDirectory)(nil)
