package config

import (
	"hash/fnv"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages runtime toggles for campus features.
// Supports gradual rollout by zone and department targeting.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// zone -> feature -> enabled
	zoneOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100). Zones are bucketed by hash.
	RolloutPercent int

	// Empty means all departments.
	TargetDepartments []string

	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	Zone       string
	Department string
}

// Predefined feature flag names.
const (
	FeatureTruancyDetection = "compliance.truancy_detection" // Cross-check sightings against the timetable
	FeatureNoiseAlerts      = "compliance.noise_alerts"      // Classroom noise alerts
	FeatureEdgeLedger       = "attendance.edge_ledger"       // Mirror attendance into the local ledger
	FeatureAbsenteeSweep    = "attendance.absentee_sweep"    // End-of-day absentee marking
	FeatureTranscripts      = "lecture.transcripts"          // Live lecture transcripts
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		zoneOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{Name: FeatureTruancyDetection, Description: "Flag students seen outside their scheduled room", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNoiseAlerts, Description: "Raise alerts on loud classrooms", Enabled: true, RolloutPercent: 100},
		{Name: FeatureEdgeLedger, Description: "Append attendance to the tamper-evident ledger", Enabled: true, RolloutPercent: 100},
		{Name: FeatureAbsenteeSweep, Description: "Mark unseen students absent after classes", Enabled: true, RolloutPercent: 100},
		{Name: FeatureTranscripts, Description: "Buffer lecture transcripts", Enabled: false, RolloutPercent: 0},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment loads overrides.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_COMPLIANCE_NOISE_ALERTS=false
// Example: FEATURE_LECTURE_TRANSCRIPTS=25
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// "compliance.noise_alerts" -> "FEATURE_COMPLIANCE_NOISE_ALERTS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
// A nil context evaluates the global switch only.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.Zone != "" {
		if overrides, ok := ff.zoneOverrides[ctx.Zone]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if len(feature.TargetDepartments) > 0 && ctx != nil && ctx.Department != "" {
		if !slices.Contains(feature.TargetDepartments, ctx.Department) {
			return false
		}
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.Zone != "" {
		return inRollout(ctx.Zone, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// Zones stay in the same bucket across restarts.
func inRollout(zone, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(strings.ToLower(zone)))
	return int(h.Sum32()%100) < percent
}

// SetZoneOverride forces a feature on or off for one zone.
func (ff *FeatureFlags) SetZoneOverride(zone, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.zoneOverrides[zone] == nil {
		ff.zoneOverrides[zone] = make(map[string]bool)
	}
	ff.zoneOverrides[zone][featureName] = enabled
}

// ClearZoneOverrides removes all overrides for a zone.
func (ff *FeatureFlags) ClearZoneOverrides(zone string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.zoneOverrides, zone)
}

// SetEnabled toggles a feature globally.
func (ff *FeatureFlags) SetEnabled(featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if f, ok := ff.features[featureName]; ok {
		f.Enabled = enabled
		if enabled && f.RolloutPercent == 0 {
			f.RolloutPercent = 100
		}
	}
}

// SetTargetDepartments restricts a feature to the given departments.
func (ff *FeatureFlags) SetTargetDepartments(featureName string, departments ...string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if f, ok := ff.features[featureName]; ok {
		f.TargetDepartments = departments
	}
}

// Snapshot returns the enabled state of every feature, for /health output.
func (ff *FeatureFlags) Snapshot() map[string]bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]bool, len(ff.features))
	for name, f := range ff.features {
		out[name] = f.Enabled && f.RolloutPercent > 0
	}
	return out
}

// Names returns all known feature names, sorted.
func (ff *FeatureFlags) Names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	names := make([]string, 0, len(ff.features))
	for name := range ff.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
