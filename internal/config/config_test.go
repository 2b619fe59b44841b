package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"barangay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	t.Setenv("TEST_TG_TOKEN", "test_token")

	yamlContent := `
telegram:
  bot_token: "${TEST_TG_TOKEN}"
  staff_chat_id: -1001
database:
  path: "test.db"
borrowing:
  timezone: "Asia/Manila"
items:
  - name: "Monobloc chair"
    category: "furniture"
    total_units: 120
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "test_token", cfg.Telegram.BotToken)
	assert.Equal(t, int64(-1001), cfg.Telegram.StaffChatID)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	require.Len(t, cfg.Items, 1)
	assert.Equal(t, int64(120), cfg.Items[0].TotalUnits)
	assert.Equal(t, "Asia/Manila", cfg.Borrowing.Location().String())

	assert.Equal(t, models.DefaultMaxAdvanceDays, cfg.Borrowing.MaxAdvanceDays)
	assert.Equal(t, 10*time.Second, cfg.Borrowing.LockTTL)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid sqlite",
			cfg: Config{
				Database: DatabaseConfig{Driver: "sqlite", Path: "path"},
				Items:    []models.Item{{Name: "Tent", TotalUnits: 2}},
			},
		},
		{
			name:    "missing sqlite path",
			cfg:     Config{Database: DatabaseConfig{Driver: "sqlite"}},
			wantErr: true,
		},
		{
			name: "valid postgres",
			cfg: Config{Database: DatabaseConfig{Driver: "postgres", Postgres: PostgresConfig{
				Host: "localhost", DBName: "borrowing",
			}}},
		},
		{
			name:    "unknown driver",
			cfg:     Config{Database: DatabaseConfig{Driver: "mysql"}},
			wantErr: true,
		},
		{
			name: "duplicate item name",
			cfg: Config{
				Database: DatabaseConfig{Driver: "sqlite", Path: "path"},
				Items:    []models.Item{{Name: "Tent"}, {Name: "tent"}},
			},
			wantErr: true,
		},
		{
			name: "negative stock",
			cfg: Config{
				Database: DatabaseConfig{Driver: "sqlite", Path: "path"},
				Items:    []models.Item{{Name: "Tent", TotalUnits: -1}},
			},
			wantErr: true,
		},
		{
			name: "bad timezone",
			cfg: Config{
				Database:  DatabaseConfig{Driver: "sqlite", Path: "path"},
				Borrowing: BorrowingConfig{Timezone: "Mars/Olympus"},
			},
			wantErr: true,
		},
		{
			name: "empty api key",
			cfg: Config{
				Database: DatabaseConfig{Driver: "sqlite", Path: "path"},
				API:      APIConfig{Auth: APIAuthConfig{APIKeys: []APIClientKey{{Name: "kiosk"}}}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "app", Password: "s3cr:t", DBName: "borrowing", SSLMode: "disable", MaxConnections: 8}
	dsn := p.DSN()
	assert.Contains(t, dsn, "postgres://app:s3cr%3At@db:5432/borrowing")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "pool_max_conns=8")
}
