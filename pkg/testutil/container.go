package testutil

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "marketedge_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container for
// integration tests against real RLS policies.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "marketedge_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// AppRole is the unprivileged login role the test migrations create.
// The container's bootstrap user is a superuser and bypasses row level
// security, so tests that exercise the RLS policies must connect as this
// role instead.
const (
	AppRole         = "kernel_app"
	AppRolePassword = "kernel_app"
)

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// ConnectAsApp returns a connection authenticated as the unprivileged
// application role, the one the RLS policies actually apply to.
func (c *PostgresContainer) ConnectAsApp(ctx context.Context) (*sqlx.DB, error) {
	u, err := url.Parse(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse container DSN: %w", err)
	}
	u.User = url.UserPassword(AppRole, AppRolePassword)

	db, err := sqlx.ConnectContext(ctx, "postgres", u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to connect as %s: %w", AppRole, err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// ApplyAccessSchema creates the access schema, kernel tables and RLS
// policies inside the container. Mirrors the production migrations.
func (c *PostgresContainer) ApplyAccessSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range AccessMigrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}

// AccessMigrations returns the access kernel schema for tests.
func AccessMigrations() []string {
	return []string{
		`CREATE SCHEMA IF NOT EXISTS access`,

		// Hierarchy nodes (materialized path)
		`CREATE TABLE IF NOT EXISTS access.hierarchy_nodes (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			parent_id UUID REFERENCES access.hierarchy_nodes(id),
			name VARCHAR(255) NOT NULL,
			level VARCHAR(20) NOT NULL,
			hierarchy_path TEXT NOT NULL,
			depth INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Role assignments at nodes
		`CREATE TABLE IF NOT EXISTS access.role_assignments (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			hierarchy_node_id UUID NOT NULL REFERENCES access.hierarchy_nodes(id),
			role VARCHAR(50) NOT NULL,
			permissions TEXT[] NOT NULL DEFAULT '{}',
			inherits_from_parent BOOLEAN NOT NULL DEFAULT TRUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_role_assignments_active
			ON access.role_assignments(hierarchy_node_id, role) WHERE is_active`,

		// Per-user permission overrides
		`CREATE TABLE IF NOT EXISTS access.permission_overrides (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			user_id UUID NOT NULL,
			hierarchy_node_id UUID NOT NULL REFERENCES access.hierarchy_nodes(id),
			permission VARCHAR(100) NOT NULL,
			granted BOOLEAN NOT NULL,
			reason TEXT,
			granted_by UUID NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_permission_overrides_active
			ON access.permission_overrides(user_id, hierarchy_node_id, permission) WHERE is_active`,

		// User placements in the hierarchy
		`CREATE TABLE IF NOT EXISTS access.user_hierarchy_assignments (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			user_id UUID NOT NULL,
			hierarchy_node_id UUID NOT NULL REFERENCES access.hierarchy_nodes(id),
			role VARCHAR(50) NOT NULL,
			is_primary BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Feature flags are platform-global, no tenant_id and no RLS
		`CREATE TABLE IF NOT EXISTS access.feature_flags (
			id UUID PRIMARY KEY,
			flag_key VARCHAR(255) UNIQUE NOT NULL,
			description TEXT,
			is_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			rollout_percentage INT NOT NULL DEFAULT 0,
			scope VARCHAR(20) NOT NULL DEFAULT 'GLOBAL',
			status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
			allowed_sectors TEXT[] NOT NULL DEFAULT '{}',
			blocked_sectors TEXT[] NOT NULL DEFAULT '{}',
			created_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS access.feature_flag_overrides (
			id UUID PRIMARY KEY,
			feature_flag_id UUID NOT NULL REFERENCES access.feature_flags(id),
			organisation_id UUID,
			user_id UUID,
			is_enabled BOOLEAN NOT NULL,
			expires_at TIMESTAMPTZ,
			created_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT feature_flag_overrides_one_target CHECK (
				(organisation_id IS NULL) <> (user_id IS NULL)
			)
		)`,

		// RLS policies: every tenant-scoped table filters on app.current_tenant
		`ALTER TABLE access.hierarchy_nodes ENABLE ROW LEVEL SECURITY`,
		`CREATE POLICY tenant_isolation ON access.hierarchy_nodes
			USING (tenant_id = current_setting('app.current_tenant')::uuid)
			WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid)`,
		`ALTER TABLE access.role_assignments ENABLE ROW LEVEL SECURITY`,
		`CREATE POLICY tenant_isolation ON access.role_assignments
			USING (tenant_id = current_setting('app.current_tenant')::uuid)
			WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid)`,
		`ALTER TABLE access.permission_overrides ENABLE ROW LEVEL SECURITY`,
		`CREATE POLICY tenant_isolation ON access.permission_overrides
			USING (tenant_id = current_setting('app.current_tenant')::uuid)
			WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid)`,
		`ALTER TABLE access.user_hierarchy_assignments ENABLE ROW LEVEL SECURITY`,
		`CREATE POLICY tenant_isolation ON access.user_hierarchy_assignments
			USING (tenant_id = current_setting('app.current_tenant')::uuid)
			WITH CHECK (tenant_id = current_setting('app.current_tenant')::uuid)`,

		// Unprivileged application role. The bootstrap superuser owns the
		// tables and is exempt from the policies above.
		`DO $$ BEGIN
			CREATE ROLE ` + AppRole + ` LOGIN PASSWORD '` + AppRolePassword + `';
		EXCEPTION WHEN duplicate_object THEN NULL;
		END $$`,
		`GRANT USAGE ON SCHEMA access TO ` + AppRole,
		`GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA access TO ` + AppRole,
	}
}
