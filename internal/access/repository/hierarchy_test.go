package repository_test

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/repository"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/database"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/tenant"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/testutil"
)

const testSearchPath = "access, public"

func newHierarchyRepo(t *testing.T) (*repository.HierarchyRepository, *testutil.MockDB) {
	mock := testutil.NewMockDB(t)
	t.Cleanup(func() { mock.Close() })
	db := database.NewFromSqlx(mock.DB, testSearchPath, logger.Nop())
	return repository.NewHierarchyRepository(db), mock
}

func nodeRow(id, parentID, level, path string, depth int) []driver.Value {
	var parent driver.Value
	if parentID != "" {
		parent = parentID
	}
	now := time.Now().UTC()
	return []driver.Value{id, testutil.TestTenantID, parent, "node " + id, level, path, depth, true, now, now}
}

func chainRows(rows ...[]driver.Value) *sqlmock.Rows {
	out := testutil.MockRows("id", "tenant_id", "parent_id", "name", "level", "hierarchy_path", "depth", "is_active", "created_at", "updated_at")
	for _, r := range rows {
		out.AddRow(r...)
	}
	return out
}

func TestAncestorChainSingleRoundTrip(t *testing.T) {
	repo, mock := newHierarchyRepo(t)
	ctx := testutil.TenantContext()

	mock.ExpectRLSBegin(testSearchPath, testutil.TestTenantID)
	mock.ExpectQuery("FROM hierarchy_nodes WHERE id = $1").
		WithArgs("dept").
		WillReturnRows(chainRows(nodeRow("dept", "loc", "department", "root/loc/dept", 2)))
	mock.ExpectQuery("WHERE id = ANY($1) AND is_active = true").
		WillReturnRows(chainRows(
			nodeRow("dept", "loc", "department", "root/loc/dept", 2),
			nodeRow("loc", "root", "location", "root/loc", 1),
			nodeRow("root", "", "organization", "root", 0),
		))
	mock.ExpectCommit()

	chain, err := repo.AncestorChain(ctx, "dept")

	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "dept", chain[0].ID)
	assert.Equal(t, "root", chain[2].ID)
	mock.ExpectationsWereMet(t)
}

func TestAncestorChainIncompleteIsCorruption(t *testing.T) {
	repo, mock := newHierarchyRepo(t)
	ctx := testutil.TenantContext()

	// The root was deactivated out from under the subtree, so the path names
	// three nodes but only two come back.
	mock.ExpectRLSBegin(testSearchPath, testutil.TestTenantID)
	mock.ExpectQuery("FROM hierarchy_nodes WHERE id = $1").
		WithArgs("dept").
		WillReturnRows(chainRows(nodeRow("dept", "loc", "department", "root/loc/dept", 2)))
	mock.ExpectQuery("WHERE id = ANY($1) AND is_active = true").
		WillReturnRows(chainRows(
			nodeRow("dept", "loc", "department", "root/loc/dept", 2),
			nodeRow("loc", "root", "location", "root/loc", 1),
		))
	mock.ExpectRollback()

	chain, err := repo.AncestorChain(ctx, "dept")

	assert.ErrorIs(t, err, errors.ErrHierarchyCorruption)
	assert.Nil(t, chain)
	mock.ExpectationsWereMet(t)
}

func TestAncestorChainBrokenDepthIsCorruption(t *testing.T) {
	repo, mock := newHierarchyRepo(t)
	ctx := testutil.TenantContext()

	mock.ExpectRLSBegin(testSearchPath, testutil.TestTenantID)
	mock.ExpectQuery("FROM hierarchy_nodes WHERE id = $1").
		WithArgs("loc").
		WillReturnRows(chainRows(nodeRow("loc", "root", "location", "root/loc", 5)))
	mock.ExpectQuery("WHERE id = ANY($1) AND is_active = true").
		WillReturnRows(chainRows(
			nodeRow("loc", "root", "location", "root/loc", 5),
			nodeRow("root", "", "organization", "root", 0),
		))
	mock.ExpectRollback()

	_, err := repo.AncestorChain(ctx, "loc")

	assert.ErrorIs(t, err, errors.ErrHierarchyCorruption)
	mock.ExpectationsWereMet(t)
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newHierarchyRepo(t)
	ctx := testutil.TenantContext()

	mock.ExpectRLSBegin(testSearchPath, testutil.TestTenantID)
	mock.ExpectQuery("FROM hierarchy_nodes WHERE id = $1").
		WithArgs("missing").
		WillReturnRows(chainRows())
	mock.ExpectRollback()

	_, err := repo.GetByID(ctx, "missing")

	assert.ErrorIs(t, err, errors.ErrNotFound)
	mock.ExpectationsWereMet(t)
}

func TestDeactivateNotFound(t *testing.T) {
	repo, mock := newHierarchyRepo(t)
	ctx := testutil.TenantContext()

	mock.ExpectRLSBegin(testSearchPath, testutil.TestTenantID)
	mock.ExpectExec("UPDATE hierarchy_nodes SET is_active = false").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Deactivate(ctx, "missing")

	assert.ErrorIs(t, err, errors.ErrNotFound)
	mock.ExpectationsWereMet(t)
}

func TestAncestorChainRequiresTenantScope(t *testing.T) {
	repo, _ := newHierarchyRepo(t)

	_, err := repo.AncestorChain(context.Background(), "dept")

	assert.ErrorIs(t, err, tenant.ErrNoTenantInContext)
}
