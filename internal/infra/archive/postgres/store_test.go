package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "designcore/internal/archive/core"
)

func TestNewStoreAppliesSchema(t *testing.T) {
	conn := &stubConn{}
	useStub(t, conn)

	s, err := NewStore(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, core.DriverPostgres, s.Driver())
	require.Len(t, conn.execs, 2)
	assert.Contains(t, conn.execs[0], "CREATE TABLE IF NOT EXISTS snapshots")
	assert.Contains(t, conn.execs[0], "payload BYTEA")
	assert.Equal(t, defaultDSN, conn.dsn)
}

func TestNewStorePingFailure(t *testing.T) {
	useStub(t, &stubConn{failPing: true})
	_, err := NewStore(context.Background(), "postgres://example/db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping postgres")
}

func TestNewStoreSchemaFailure(t *testing.T) {
	useStub(t, &stubConn{failExec: true})
	_, err := NewStore(context.Background(), "postgres://example/db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create snapshots schema")
}

func TestNewStoreOpenFailure(t *testing.T) {
	prev := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { sqlOpen = prev })
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}

func TestDeleteUsesNumberedPlaceholders(t *testing.T) {
	conn := &stubConn{}
	useStub(t, conn)
	s, err := NewStore(context.Background(), "")
	require.NoError(t, err)

	_, err = s.Delete(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM snapshots WHERE document_id = $1", conn.execs[len(conn.execs)-1])
}

// --- stub driver ---

var stubSeq atomic.Int64

func useStub(t *testing.T, conn *stubConn) {
	t.Helper()
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	prev := sqlOpen
	sqlOpen = func(_ string, dsn string) (*sql.DB, error) {
		conn.dsn = dsn
		return sql.Open(name, dsn)
	}
	t.Cleanup(func() { sqlOpen = prev })
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

type stubConn struct {
	dsn      string
	execs    []string
	failPing bool
	failExec bool
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *stubConn) Close() error { return nil }
func (c *stubConn) Begin() (driver.Tx, error) { return nil, errors.New("not implemented") }

func (c *stubConn) Ping(context.Context) error {
	if c.failPing {
		return errors.New("ping fail")
	}
	return nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, strings.TrimSpace(query))
	if c.failExec {
		return nil, errors.New("exec fail")
	}
	return driver.RowsAffected(0), nil
}
