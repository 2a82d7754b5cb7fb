// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// isolate clears every configuration source outside the test's control.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvDatabaseURL, "")
	t.Setenv(config.EnvTokenSecret, "")
	configFile = ""
	t.Cleanup(func() { configFile = "" })
}

// execute runs the CLI with args and returns its combined output.
func execute(ctx context.Context, t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(deps)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// fakePool answers pings and reports a fixed row count for every statement.
type fakePool struct {
	mu       sync.Mutex
	affected int64
	execs    []string
	pingErr  error
	closed   bool
}

func (p *fakePool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.execs = append(p.execs, sql)
	return pgconn.NewCommandTag("DELETE " + strconv.FormatInt(p.affected, 10)), nil
}

func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: pgx.ErrNoRows}
}

func (p *fakePool) Ping(context.Context) error { return p.pingErr }

func (p *fakePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func poolDeps(p *fakePool) *Deps {
	return &Deps{
		OpenPool: func(context.Context, string, time.Duration) (Pool, error) {
			return p, nil
		},
	}
}

// fakeMigrator records the operations it is asked to perform.
type fakeMigrator struct {
	calls    []string
	version  uint
	dirty    bool
	status   store.MigrationStatus
	opErr    error
	closeErr error
	closed   bool
}

func (m *fakeMigrator) record(call string) error {
	m.calls = append(m.calls, call)
	return m.opErr
}

func (m *fakeMigrator) Up() error   { return m.record("up") }
func (m *fakeMigrator) Down() error { return m.record("down") }

func (m *fakeMigrator) Steps(n int) error { return m.record("steps " + strconv.Itoa(n)) }

func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, m.dirty, nil }

func (m *fakeMigrator) Force(v int) error { return m.record("force " + strconv.Itoa(v)) }

func (m *fakeMigrator) Status() (store.MigrationStatus, error) {
	if m.opErr != nil {
		return store.MigrationStatus{}, m.opErr
	}
	return m.status, nil
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return m.closeErr
}

func migratorDeps(m *fakeMigrator) *Deps {
	return &Deps{
		NewMigrator: func(string) (Migrator, error) { return m, nil },
	}
}

var errBoom = errors.New("boom")
