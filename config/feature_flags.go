package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags holds runtime toggles. Each flag can be overridden with a
// FEATURE_<NAME> environment variable and flipped at runtime; readers see
// the change on their next check.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// FeatureProgression gates experience, streaks and achievements after
	// registrations and attendance.
	FeatureProgression = "progression"

	FeatureRegistrationEmails = "registration_emails"
	FeatureAchievementEmails  = "achievement_emails"
	FeatureRateLimiting       = "rate_limiting"
)

// LoadFeatureFlags loads feature flags with environment overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns the defaults without reading the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureProgression] = &Feature{
		Name:        FeatureProgression,
		Description: "Grant experience, extend streaks and unlock achievements",
		Enabled:     true,
	}
	ff.features[FeatureRegistrationEmails] = &Feature{
		Name:        FeatureRegistrationEmails,
		Description: "Send a confirmation email after registering",
		Enabled:     true,
	}
	ff.features[FeatureAchievementEmails] = &Feature{
		Name:        FeatureAchievementEmails,
		Description: "Send an email when an achievement unlocks",
		Enabled:     true,
	}
	ff.features[FeatureRateLimiting] = &Feature{
		Name:        FeatureRateLimiting,
		Description: "Rate limit API requests per client",
		Enabled:     true,
	}
}

// loadFromEnvironment applies overrides.
// Format: FEATURE_<NAME>=true|false
// Example: FEATURE_ACHIEVEMENT_EMAILS=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
		}
	}
}

// featureNameToEnvKey converts a feature name to its environment key.
// "registration_emails" -> "FEATURE_REGISTRATION_EMAILS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether the feature is on. Unknown names are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// Toggle returns a closure reading the flag on every call.
func (ff *FeatureFlags) Toggle(featureName string) func() bool {
	return func() bool { return ff.IsEnabled(featureName) }
}

// Set turns a feature on or off.
func (ff *FeatureFlags) Set(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.Enabled = enabled
	return nil
}

// GetAllFeatures returns copies of every feature sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Convenience methods for common checks ---

// RateLimiting reports whether API rate limiting is on.
func (ff *FeatureFlags) RateLimiting() bool {
	return ff.IsEnabled(FeatureRateLimiting)
}

// --- Errors ---

var ErrFeatureNotFound = &FeatureFlagError{Message: "feature not found"}

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
