package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"ses-portal/internal/domain/auth"
	xerrors "ses-portal/internal/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func TestUserRepositoryFindUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	seen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("FROM users WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tax_id", "name", "email", "password_hash", "active", "last_access_at"}).
			AddRow(42, "52998224725", "Maria", "maria@saude.gov.br", "hash", true, seen))

	u, err := repo.FindUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
	assert.True(t, u.Active)
	require.NotNil(t, u.LastAccessAt)
	assert.True(t, seen.Equal(*u.LastAccessAt))
}

func TestUserRepositoryNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(q("FROM users WHERE tax_id = $1")).
		WithArgs("52998224725").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByTaxID(context.Background(), "52998224725")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestUserRepositoryTouchLastAccess(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(q("UPDATE users SET last_access_at = $1 WHERE id = $2")).
		WithArgs(at, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.TouchLastAccess(context.Background(), 42, at))
}

func TestSessionRepositoryUpsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db)
	now := time.Now()

	mock.ExpectExec(q("ON CONFLICT (session_id) DO UPDATE")).
		WithArgs("sid-1", int64(7), "203.0.113.9", "uahash", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &auth.SessionRecord{
		SessionID: "sid-1", UserID: 7, IPAddress: "203.0.113.9", UserAgentHash: "uahash",
		CreatedAt: now, ExpiresAt: now.Add(2 * time.Hour), LastActivityAt: now,
	})
	require.NoError(t, err)
}

func TestSessionRepositoryFind(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db)
	now := time.Now()
	cols := []string{"session_id", "user_id", "ip_address", "user_agent_hash", "created_at", "expires_at", "last_activity_at", "active", "active_role_id"}

	mock.ExpectQuery(q("FROM user_sessions")).
		WithArgs("sid-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("sid-1", 7, "203.0.113.9", "h", now, now.Add(time.Hour), now, true, 4))
	mock.ExpectQuery(q("FROM user_sessions")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.Find(context.Background(), "sid-1")
	require.NoError(t, err)
	require.NotNil(t, rec.ActiveRoleID)
	assert.Equal(t, auth.RoleMunicipalTechnician, *rec.ActiveRoleID)
	assert.True(t, rec.Usable(now))

	_, err = repo.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestSessionRepositoryDeactivateAllForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db)

	mock.ExpectExec(q("UPDATE user_sessions SET active = FALSE WHERE user_id = $1 AND active")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeactivateAllForUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSessionRepositoryDeleteStale(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepository(db)

	mock.ExpectExec(q("DELETE FROM user_sessions WHERE active = FALSE OR expires_at < $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(q("DELETE FROM user_sessions")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	n, err := repo.DeleteStale(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = repo.DeleteStale(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestGrantRepositoryIsEnabled(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGrantRepository(db)

	mock.ExpectQuery(q("FROM role_functionalities")).
		WithArgs(int64(3), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"enabled"}).AddRow(true))
	mock.ExpectQuery(q("FROM role_functionalities")).
		WithArgs(int64(3), int64(10)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q("FROM role_functionalities")).
		WithArgs(int64(3), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"enabled"}).AddRow(false))

	ok, err := repo.IsEnabled(context.Background(), auth.RoleMunicipalManager, auth.FuncHealthReports)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsEnabled(context.Background(), auth.RoleMunicipalManager, auth.FuncGlobalSettings)
	require.NoError(t, err)
	assert.False(t, ok, "absent row denies")

	ok, err = repo.IsEnabled(context.Background(), auth.RoleMunicipalManager, auth.FuncSystemAudit)
	require.NoError(t, err)
	assert.False(t, ok, "disabled row denies")
}

func TestGrantRepositoryEnabledFunctionalities(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGrantRepository(db)

	mock.ExpectQuery(q("array_agg(functionality_id")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"ids"}).AddRow([]byte("{5,7,42}")))

	fns, err := repo.EnabledFunctionalities(context.Background(), auth.RoleMunicipalTechnician)
	require.NoError(t, err)
	assert.Equal(t, []auth.FunctionalityID{auth.FuncHealthReports, auth.FuncHealthForm}, fns)
}

func TestGrantRepositoryRoleGrants(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGrantRepository(db)
	cols := []string{"user_id", "role_id", "name", "region_id", "municipality_code", "facility_code", "active"}

	mock.ExpectQuery(q("FROM user_roles ur")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(42, 2, "Regional Manager", 3, "", "", true).
			AddRow(42, 4, "Municipal Technician", nil, "2611606", "1234567", true))

	grants, err := repo.RoleGrants(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	require.NotNil(t, grants[0].Jurisdiction.RegionID)
	assert.Equal(t, int64(3), *grants[0].Jurisdiction.RegionID)
	assert.Equal(t, "1234567", grants[1].Jurisdiction.FacilityCode)
	assert.Equal(t, "2611606", grants[1].Jurisdiction.MunicipalityCode)
}

func TestGrantRepositoryRoleGrantMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGrantRepository(db)

	mock.ExpectQuery(q("FROM user_roles ur")).
		WithArgs(int64(42), int64(1)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.RoleGrant(context.Background(), 42, auth.RoleSESAdmin)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestJurisdictionRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewJurisdictionRepository(db)

	mock.ExpectQuery(q("WHERE region_id = $1 AND active")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("2604106").AddRow("2611606"))
	mock.ExpectQuery(q("FROM facilities")).
		WithArgs("1234567").
		WillReturnRows(sqlmock.NewRows([]string{"municipality_code"}).AddRow("2611606"))
	mock.ExpectQuery(q("FROM facilities")).
		WithArgs("0000000").
		WillReturnError(sql.ErrNoRows)

	codes, err := repo.MunicipalitiesInRegion(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"2604106", "2611606"}, codes)

	code, err := repo.FacilityMunicipality(context.Background(), "1234567")
	require.NoError(t, err)
	assert.Equal(t, "2611606", code)

	_, err = repo.FacilityMunicipality(context.Background(), "0000000")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestAuditRepositoryRecordAssignsID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepository(db)

	mock.ExpectExec(q("INSERT INTO audit_log")).
		WithArgs(sqlmock.AnyArg(), int64(7), int64(1), auth.AuditActionForceLogout, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ev := &auth.AuditEvent{UserID: 7, ActorID: 1, Action: auth.AuditActionForceLogout, Metadata: map[string]interface{}{"revoked": 2}}
	require.NoError(t, repo.Record(context.Background(), ev))
	assert.Len(t, ev.ID, 26)
	assert.False(t, ev.OccurredAt.IsZero())
}
