package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		BetsAPIToken:       "token",
		DatabasePassword:   "secret",
		DatabaseUser:       "user",
		DatabaseHost:       "db",
		DatabasePort:       5432,
		DatabaseName:       "odds",
		DatabaseSSLMode:    "disable",
		RetentionDays:      60,
		BackfillWorkers:    4,
		MaxRetries:         3,
		ClassificationMode: ClassificationAllowlist,
		Timezone:           "America/Sao_Paulo",
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BETSAPI_TOKEN", "abc")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/odds")
	t.Setenv("LEAGUE_IDS", "22614, 22821,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.b365api.com/v1", cfg.BetsAPIBaseURLV1)
	assert.Equal(t, "https://api.b365api.com/v2", cfg.BetsAPIBaseURLV2)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 60, cfg.RetentionDays)
	assert.Equal(t, 4, cfg.BackfillWorkers)
	assert.Equal(t, 1, cfg.TargetSportID)
	assert.Equal(t, "1.1s", cfg.RequestDelay.String())
	assert.Equal(t, []string{"22614", "22821"}, cfg.Leagues())
	assert.Equal(t, "postgres://u:p@localhost:5432/odds", cfg.DatabaseDSN())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.BetsAPIToken = "" }, wantErr: "BETSAPI_TOKEN"},
		{name: "no database credentials", mutate: func(c *Config) { c.DatabasePassword = "" }, wantErr: "DATABASE_URL"},
		{name: "zero retention", mutate: func(c *Config) { c.RetentionDays = 0 }, wantErr: "RETENTION_DAYS"},
		{name: "negative workers", mutate: func(c *Config) { c.BackfillWorkers = -1 }, wantErr: "BACKFILL_WORKERS"},
		{name: "unknown mode", mutate: func(c *Config) { c.ClassificationMode = "fuzzy" }, wantErr: "CLASSIFICATION_MODE"},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseDSN_FromParts(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "postgres://user:secret@db:5432/odds?sslmode=disable", cfg.DatabaseDSN())
}

func TestLocation(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "America/Sao_Paulo", cfg.Location().String())

	cfg.Timezone = "nowhere"
	assert.Equal(t, "UTC", cfg.Location().String())
}
