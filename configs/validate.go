package configs

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/robfig/cron/v3"
)

const minSecretLength = 32

// CronParser parses the six-field specs used by the maintenance scheduler.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks the configuration once at startup. The core assumes a
// valid configuration afterwards.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.JWT),
		validation.Field(&c.Identity),
		validation.Field(&c.Password),
		validation.Field(&c.Store),
		validation.Field(&c.RateLimit),
		validation.Field(&c.Maintenance),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required),
	)
}

func (j JWTConfig) Validate() error {
	return validation.ValidateStruct(&j,
		validation.Field(&j.Secret, validation.Required, validation.Length(minSecretLength, 0)),
		validation.Field(&j.Issuer, validation.Required),
		validation.Field(&j.Audience, validation.Required),
		validation.Field(&j.AccessTokenTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&j.RefreshTokenTTL, validation.Required, validation.Min(time.Second)),
	)
}

func (i IdentityConfig) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.EphemeralTokenTTL, validation.Required, validation.Min(time.Second)),
	)
}

func (p PasswordConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MinLength, validation.Min(4)),
		validation.Field(&p.MaxLength, validation.Min(p.MinLength)),
		validation.Field(&p.Iterations, validation.Required, validation.Min(1)),
	)
}

func (s StoreConfig) Validate() error {
	// Driver-specific sections are only checked for the selected driver.
	onlyFor := func(driver string) []validation.Rule {
		if s.Driver != driver {
			return []validation.Rule{validation.Skip}
		}
		return nil
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(DriverDynamoDB, DriverRedis, DriverPostgres, DriverMemory)),
		validation.Field(&s.Tables),
		validation.Field(&s.AWS, onlyFor(DriverDynamoDB)...),
		validation.Field(&s.Database, onlyFor(DriverPostgres)...),
		validation.Field(&s.Redis, onlyFor(DriverRedis)...),
	)
}

func (t TablesConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Users, validation.Required),
		validation.Field(&t.RefreshTokens, validation.Required),
		validation.Field(&t.EphemeralTokens, validation.Required),
		validation.Field(&t.UserRoles, validation.Required),
	)
}

// Validate requires an endpoint when DynamoDB Local is in use.
func (a AWSConfig) Validate() error {
	endpointRules := []validation.Rule{}
	if a.UseLocal {
		endpointRules = append(endpointRules, validation.Required)
	}
	return validation.ValidateStruct(&a,
		validation.Field(&a.Region, validation.Required),
		validation.Field(&a.Endpoint, endpointRules...),
	)
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.DSN, validation.Required),
		validation.Field(&d.MaxOpenConns, validation.Min(1)),
	)
}

func (r RedisConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Host, validation.Required),
		validation.Field(&r.Port, validation.Required),
		validation.Field(&r.KeyPrefix, validation.Required),
	)
}

func (r RateLimitConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Backend, validation.In("redis", "local")),
		validation.Field(&r.DefaultRequestsPerMinute, validation.Required, validation.Min(1)),
		validation.Field(&r.Window, validation.Required, validation.Min(time.Second)),
	)
}

func (m MaintenanceConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	return validation.ValidateStruct(&m,
		validation.Field(&m.CleanupSchedule, validation.Required, validation.By(validCronSpec)),
		validation.Field(&m.CleanupTimeout, validation.Required, validation.Min(time.Second)),
	)
}

func validCronSpec(value interface{}) error {
	spec, _ := value.(string)
	if _, err := CronParser.Parse(spec); err != nil {
		return errors.New("must be a valid cron expression with seconds")
	}
	return nil
}
