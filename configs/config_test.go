package configs_test

import (
	"testing"
	"time"

	"github.com/avatarctic/identity-kv/configs"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := configs.Load()
	require.NoError(t, err)

	require.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	require.Equal(t, 30*24*time.Hour, cfg.JWT.RefreshTokenTTL)
	require.True(t, cfg.Identity.RequireEmailConfirmation)
	require.True(t, cfg.Identity.SendWelcomeEmail)
	require.Equal(t, time.Hour, cfg.Identity.EphemeralTokenTTL)
	require.Equal(t, 8, cfg.Password.MinLength)
	require.Equal(t, 100, cfg.Password.MaxLength)
	require.Equal(t, 100000, cfg.Password.Iterations)
	require.Equal(t, "Users", cfg.Store.Tables.Users)
	require.Equal(t, configs.DriverMemory, cfg.Store.Driver)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("IDENTITY_REQUIRE_EMAIL_CONFIRMATION", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := configs.Load()
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.JWT.AccessTokenTTL)
	require.False(t, cfg.Identity.RequireEmailConfirmation)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("STORE_DRIVER", "memory")

	_, err := configs.Load()
	require.Error(t, err)
}

func validConfig() *configs.Config {
	return &configs.Config{
		Server: configs.ServerConfig{Port: "8080"},
		JWT: configs.JWTConfig{
			Secret:          secret,
			Issuer:          "issuer",
			Audience:        "audience",
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
		},
		Identity: configs.IdentityConfig{EphemeralTokenTTL: time.Hour},
		Password: configs.PasswordConfig{MinLength: 8, MaxLength: 100, Iterations: 1000},
		Store: configs.StoreConfig{
			Driver: configs.DriverDynamoDB,
			Tables: configs.TablesConfig{Users: "u", RefreshTokens: "r", EphemeralTokens: "e", UserRoles: "ur"},
			AWS:    configs.AWSConfig{Region: "eu-west-1"},
		},
		Maintenance: configs.MaintenanceConfig{Enabled: true, CleanupSchedule: "0 0 * * * *", CleanupTimeout: time.Minute},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(c *configs.Config){
		"password max below min":  func(c *configs.Config) { c.Password.MaxLength = 6 },
		"password min below four": func(c *configs.Config) { c.Password.MinLength = 3 },
		"missing table":           func(c *configs.Config) { c.Store.Tables.UserRoles = "" },
		"missing region":          func(c *configs.Config) { c.Store.AWS.Region = "" },
		"local without endpoint":  func(c *configs.Config) { c.Store.AWS.UseLocal = true },
		"zero access lifetime":    func(c *configs.Config) { c.JWT.AccessTokenTTL = 0 },
		"unknown driver":          func(c *configs.Config) { c.Store.Driver = "cassandra" },
		"bad cron spec":           func(c *configs.Config) { c.Maintenance.CleanupSchedule = "every hour" },
		"postgres without dsn":    func(c *configs.Config) { c.Store.Driver = configs.DriverPostgres },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestValidate_IgnoresSectionsOfOtherDrivers(t *testing.T) {
	c := validConfig()
	c.Store.Driver = configs.DriverMemory
	c.Store.AWS = configs.AWSConfig{}

	require.NoError(t, c.Validate())
}
