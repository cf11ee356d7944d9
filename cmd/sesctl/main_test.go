package main

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"ses-portal/internal/app"
	"ses-portal/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fakeOpener(t *testing.T) (opener, sqlmock.Sqlmock, *bool) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	closed := false
	open := func(_ context.Context, cfg config.AppConfig, _ *zap.Logger) (*app.Components, func(), error) {
		cfg.Session.Lifetime = time.Hour
		cfg.CSRF.MaxAge = time.Hour
		return app.Wire(cfg, sqlDB, rdb, zap.NewNop()), func() { closed = true }, nil
	}
	return open, mock, &closed
}

func run(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSweepCommand(t *testing.T) {
	open, mock, closed := fakeOpener(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM user_sessions WHERE active = FALSE OR expires_at < $1`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	out, err := run(t, open, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 4 session rows")
	assert.True(t, *closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepCommandReportsStoreErrors(t *testing.T) {
	open, mock, _ := fakeOpener(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM user_sessions`)).
		WillReturnError(errors.New("connection reset"))

	_, err := run(t, open, "sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep failed")
}

func TestForceLogoutCommand(t *testing.T) {
	open, mock, _ := fakeOpener(t)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE user_sessions SET active = FALSE WHERE user_id = $1 AND active`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO audit_log`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	out, err := run(t, open, "force-logout", "--user", "7", "--actor", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked 2 sessions of user 7")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForceLogoutCommandValidatesUser(t *testing.T) {
	open, _, _ := fakeOpener(t)

	_, err := run(t, open, "force-logout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")

	_, err = run(t, open, "force-logout", "--user", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive")
}

func TestOpenerFailureStopsCommand(t *testing.T) {
	open := func(context.Context, config.AppConfig, *zap.Logger) (*app.Components, func(), error) {
		return nil, nil, errors.New("failed to connect to PostgreSQL: refused")
	}
	_, err := run(t, open, "sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PostgreSQL")
}
