package bootstrap

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/esimbot/core/config"
	coredatabase "github.com/m3rciful/esimbot/core/database"
)

func TestRunOrder(t *testing.T) {
	t.Parallel()

	var steps []string
	res, err := Run(Options{
		Config:     &coreconfig.Config{},
		Migrations: coredatabase.Migrations{FS: fstest.MapFS{}, Dir: "."},
		LoggerInit: func(*coreconfig.Config) error { steps = append(steps, "logger"); return nil },
		Migrate: func(coredatabase.Config, coredatabase.Migrations) error {
			steps = append(steps, "migrate")
			return nil
		},
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			steps = append(steps, "connect")
			return &sqlx.DB{}, nil
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res.DB)
	assert.Equal(t, []string{"logger", "migrate", "connect"}, steps)
}

func TestRunSkipsMigrationsWithoutSource(t *testing.T) {
	t.Parallel()

	migrated := false
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Migrate: func(coredatabase.Config, coredatabase.Migrations) error {
			migrated = true
			return nil
		},
		Connect: func(coredatabase.Config) (*sqlx.DB, error) { return &sqlx.DB{}, nil },
	})
	require.NoError(t, err)
	assert.False(t, migrated)
}

func TestRunWrapsFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		Migrations: coredatabase.Migrations{FS: fstest.MapFS{}},
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Migrate:    func(coredatabase.Config, coredatabase.Migrations) error { return boom },
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "migrations failed")

	_, err = Run(Options{})
	require.Error(t, err)
}
