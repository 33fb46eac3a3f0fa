package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "dev-secret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, time.UTC.String(), cfg.App.Location.String())
	assert.Equal(t, 10, cfg.Progression.RegistrationXP)
	assert.Equal(t, 25, cfg.Progression.AttendanceXP)
	assert.Equal(t, 50, cfg.Progression.MaxInteractionXP)
	assert.Equal(t, "15 0 * * *", cfg.Scheduler.StreakResetCron)
	assert.Equal(t, 24*time.Hour, cfg.Email.ClaimTTL)
	assert.True(t, cfg.Features.RateLimiting())
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "dev-secret")
	t.Setenv("DB_DRIVER", "MEMORY")
	t.Setenv("APP_TIMEZONE", "Europe/London")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PROGRESSION_ATTENDANCE_XP", "40")
	t.Setenv("HTTP_RATE_LIMIT_WINDOW", "not-a-duration")
	t.Setenv("FEATURE_ACHIEVEMENT_EMAILS", "false")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "Europe/London", cfg.App.Location.String())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 40, cfg.Progression.AttendanceXP)
	assert.Equal(t, time.Minute, cfg.HTTP.RateLimitWindow)
	assert.False(t, cfg.Features.IsEnabled(FeatureAchievementEmails))
	assert.True(t, cfg.Features.IsEnabled(FeatureRegistrationEmails))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "AUTH_JWT_SECRET is required"},
		{"unknown driver", map[string]string{"AUTH_JWT_SECRET": "s", "DB_DRIVER": "sqlite"}, "DB_DRIVER must be"},
		{"bad timezone", map[string]string{"AUTH_JWT_SECRET": "s", "APP_TIMEZONE": "Mars/Olympus"}, "APP_TIMEZONE"},
		{"memory in production", map[string]string{
			"AUTH_JWT_SECRET": "0123456789abcdef0123456789abcdef",
			"APP_ENV":         "production",
			"DB_DRIVER":       "memory",
		}, "not allowed in production"},
		{"short production secret", map[string]string{"AUTH_JWT_SECRET": "short", "APP_ENV": "production"}, "at least 32"},
		{"negative xp", map[string]string{"AUTH_JWT_SECRET": "s", "PROGRESSION_REGISTRATION_XP": "-1"}, "PROGRESSION_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFeatureFlags(t *testing.T) {
	ff := NewFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureProgression))
	assert.False(t, ff.IsEnabled("unknown"))

	toggle := ff.Toggle(FeatureRegistrationEmails)
	assert.True(t, toggle())
	require.NoError(t, ff.Set(FeatureRegistrationEmails, false))
	assert.False(t, toggle())

	assert.ErrorIs(t, ff.Set("unknown", true), ErrFeatureNotFound)

	all := ff.GetAllFeatures()
	require.Len(t, all, 4)
	assert.Equal(t, FeatureAchievementEmails, all[0].Name)
}

func TestFeatureNameToEnvKey(t *testing.T) {
	assert.Equal(t, "FEATURE_REGISTRATION_EMAILS", featureNameToEnvKey(FeatureRegistrationEmails))
	assert.Equal(t, "FEATURE_RATE_LIMITING", featureNameToEnvKey(FeatureRateLimiting))
}
