package domain

import (
	"context"
	"time"
)

// Repository defines the keyed-lookup and full-catalog-scan capability the
// core needs from reference-data storage. The engine choice (SQLite or
// PostgreSQL) is a deployment concern, not a core concern.
type Repository interface {
	// Curated evidence tier. GetAdditivesByKeys performs one batched query
	// for all keys; the returned map is keyed by the exact stored e_number.
	SaveAdditive(ctx context.Context, rec *AdditiveRecord) error
	GetAdditivesByKeys(ctx context.Context, keys []string) (map[string]*AdditiveRecord, error)

	// Authorisation-list fallback tier.
	SaveAuthorisation(ctx context.Context, auth *Authorisation) error
	GetAuthorisationsByKeys(ctx context.Context, keys []string) (map[string]*Authorisation, error)

	// Interaction rule catalog.
	SaveInteractionRule(ctx context.Context, rule *InteractionRule) error
	ListInteractionRules(ctx context.Context) ([]*InteractionRule, error)

	// Evidence sources, many-to-many with rules.
	SaveEvidenceSource(ctx context.Context, src *EvidenceSource) error
	ListEvidenceSources(ctx context.Context) ([]*EvidenceSource, error)

	// Persisted score cache (optimization, invalidate-able).
	SaveProductScore(ctx context.Context, score *ProductScore) error
	GetProductScore(ctx context.Context, barcode string) (*ProductScore, error)
	DeleteProductScores(ctx context.Context) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user"`
	PostgresPassword string `json:"-" yaml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime"`
}
