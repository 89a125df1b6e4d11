package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")

	c, err := New()
	require.NoError(t, err)

	assert.Equal(t, EnvDev, c.Env)
	assert.Equal(t, 8888, c.Server.Port)
	assert.Equal(t, 70, c.Reconciliation.AutoMatchThreshold)
	assert.InDelta(t, 0.95, c.Reconciliation.PaidRatio, 1e-9)
	assert.Equal(t, time.Hour, c.Reconciliation.DuplicateWindow)
	assert.Equal(t, "UNIT-{unit_number}", c.Reconciliation.DefaultReferenceFormat)
	assert.Equal(t, 60*time.Second, c.Mpesa.TokenSafetyMargin)
	assert.Equal(t, 3, c.Reminder.DefaultLeadDays)
	assert.Equal(t, "KE", c.Mpesa.DefaultCountry)
}

func TestNew_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
env: dev
reconciliation:
  auto_match_threshold: 80
reminder:
  company_name: Acme Homes
`), 0o600))
	t.Setenv("APP_CONFIG_FILE", file)
	t.Setenv("APP_SERVER_PORT", "9999")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, 80, c.Reconciliation.AutoMatchThreshold)
	assert.Equal(t, "Acme Homes", c.Reminder.CompanyName)
	assert.Equal(t, 9999, c.Server.Port)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	c, err := New()
	require.NoError(t, err)

	bad := *c
	bad.Reconciliation.AutoMatchThreshold = 101
	require.Error(t, Validate(&bad))

	bad = *c
	bad.Reconciliation.PaidRatio = 0
	require.Error(t, Validate(&bad))

	bad = *c
	bad.Env = EnvProd
	bad.Auth.JWTSecret = ""
	require.Error(t, Validate(&bad))
}

func TestLocation_FallsBackToUTC(t *testing.T) {
	c := &Config{Reminder: ReminderConfig{Timezone: "Nowhere/Invalid"}}
	assert.Equal(t, time.UTC, c.Location())

	var nilCfg *Config
	assert.Equal(t, time.UTC, nilCfg.Location())
}
