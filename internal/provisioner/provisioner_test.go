package provisioner

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvisioner(t *testing.T) (*Provisioner, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return New(db, zap.NewNop()), mock
}

func TestNewSchemaName(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		name, err := NewSchemaName()
		require.NoError(t, err)
		assert.True(t, ValidSchemaName(name), "generated name %q must match the pattern", name)
		assert.False(t, seen[name], "generated name %q repeated", name)
		seen[name] = true
	}
}

func TestValidSchemaName(t *testing.T) {
	assert.True(t, ValidSchemaName("tenant_0123456789abcdef"))

	for _, name := range []string{
		"",
		"tenant_",
		"tenant_0123",
		"tenant_0123456789ABCDEF",
		"tenant_0123456789abcdef0",
		"public",
		"tenant_0123456789abcdef; DROP TABLE tenants",
	} {
		assert.False(t, ValidSchemaName(name), "name %q must be rejected", name)
	}
}

func TestProvisionRunsInOneTransaction(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE SCHEMA "tenant_0123456789abcdef"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE "tenant_0123456789abcdef".entities`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE "tenant_0123456789abcdef".records`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := p.Provision(context.Background(), "tnt_1", "tenant_0123456789abcdef")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionRollsBackOnFailure(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE SCHEMA").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := p.Provision(context.Background(), "tnt_1", "tenant_0123456789abcdef")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionRejectsBadSchemaName(t *testing.T) {
	p, _ := newTestProvisioner(t)
	err := p.Provision(context.Background(), "tnt_1", "public")
	require.Error(t, err)
}

func TestDeprovisionSoft(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectExec("UPDATE tenants SET deleted_at").
		WithArgs("tnt_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.Deprovision(context.Background(), "tnt_1", "tenant_0123456789abcdef", false)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeprovisionHard(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP SCHEMA IF EXISTS "tenant_0123456789abcdef" CASCADE`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM tenant_users WHERE tenant_id").
		WithArgs("tnt_1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM tenants WHERE id").
		WithArgs("tnt_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.Deprovision(context.Background(), "tnt_1", "tenant_0123456789abcdef", true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeprovisionHardRejectsBadSchemaName(t *testing.T) {
	p, _ := newTestProvisioner(t)
	err := p.Deprovision(context.Background(), "tnt_1", "public", true)
	require.Error(t, err)
}

func TestCreateDefaultEntity(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectExec(`INSERT INTO "tenant_0123456789abcdef".entities`).
		WithArgs("ent_1", "Acme").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.CreateDefaultEntity(context.Background(), "tenant_0123456789abcdef", "ent_1", "Acme")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
