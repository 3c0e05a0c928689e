package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/inscenium-media/scene.render/internal/render/gate"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/render/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Gate params
	RejectThreshold              *float64 `json:"reject_threshold,omitempty"`
	MaxGeometryUncertainty       *float64 `json:"max_geometry_uncertainty,omitempty"`
	MinTemporalStability         *float64 `json:"min_temporal_stability,omitempty"`
	MinDeviceCapability          *float64 `json:"min_device_capability,omitempty"`
	DownscaleCapabilityThreshold *float64 `json:"downscale_capability_threshold,omitempty"`
	DecisionDwellFrames          *int     `json:"decision_dwell_frames,omitempty"`

	// Scoring params
	WeightScheme               *string  `json:"weight_scheme,omitempty"`
	MinExposureDurationSeconds *float64 `json:"min_exposure_duration_seconds,omitempty"`
	MaxScreenCoverageFraction  *float64 `json:"max_screen_coverage_fraction,omitempty"`

	// Uncertainty params
	TemporalWindowFrames *int     `json:"temporal_window_frames,omitempty"`
	JitterScalePx        *float64 `json:"jitter_scale_px,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/render/gate/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.RejectThreshold != nil {
		if *c.RejectThreshold < 0 || *c.RejectThreshold > 100 {
			return fmt.Errorf("reject_threshold must be between 0 and 100, got %f", *c.RejectThreshold)
		}
	}

	unitFields := map[string]*float64{
		"min_temporal_stability":         c.MinTemporalStability,
		"min_device_capability":          c.MinDeviceCapability,
		"downscale_capability_threshold": c.DownscaleCapabilityThreshold,
		"max_screen_coverage_fraction":   c.MaxScreenCoverageFraction,
	}
	for name, v := range unitFields {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.MaxGeometryUncertainty != nil && *c.MaxGeometryUncertainty < 0 {
		return fmt.Errorf("max_geometry_uncertainty must be non-negative, got %f", *c.MaxGeometryUncertainty)
	}

	if c.DecisionDwellFrames != nil && *c.DecisionDwellFrames < 0 {
		return fmt.Errorf("decision_dwell_frames must be non-negative, got %d", *c.DecisionDwellFrames)
	}

	if c.TemporalWindowFrames != nil && *c.TemporalWindowFrames < 1 {
		return fmt.Errorf("temporal_window_frames must be positive, got %d", *c.TemporalWindowFrames)
	}

	if c.JitterScalePx != nil && *c.JitterScalePx <= 0 {
		return fmt.Errorf("jitter_scale_px must be positive, got %f", *c.JitterScalePx)
	}

	if c.WeightScheme != nil {
		switch *c.WeightScheme {
		case "", "five_term", "four_term_legacy":
		default:
			return fmt.Errorf("unknown weight_scheme %q", *c.WeightScheme)
		}
	}

	return nil
}

// GetRejectThreshold returns the reject_threshold value or the default.
func (c *TuningConfig) GetRejectThreshold() float64 {
	if c.RejectThreshold == nil {
		return 70.0
	}
	return *c.RejectThreshold
}

// GetMaxGeometryUncertainty returns the max_geometry_uncertainty value or the default.
func (c *TuningConfig) GetMaxGeometryUncertainty() float64 {
	if c.MaxGeometryUncertainty == nil {
		return 0.5
	}
	return *c.MaxGeometryUncertainty
}

// GetMinTemporalStability returns the min_temporal_stability value or the default.
func (c *TuningConfig) GetMinTemporalStability() float64 {
	if c.MinTemporalStability == nil {
		return 0.6
	}
	return *c.MinTemporalStability
}

// GetMinDeviceCapability returns the min_device_capability value or the default.
func (c *TuningConfig) GetMinDeviceCapability() float64 {
	if c.MinDeviceCapability == nil {
		return 0.4
	}
	return *c.MinDeviceCapability
}

// GetDownscaleCapabilityThreshold returns the downscale_capability_threshold value or the default.
func (c *TuningConfig) GetDownscaleCapabilityThreshold() float64 {
	if c.DownscaleCapabilityThreshold == nil {
		return 0.3
	}
	return *c.DownscaleCapabilityThreshold
}

// GetDecisionDwellFrames returns the decision_dwell_frames value or the default.
func (c *TuningConfig) GetDecisionDwellFrames() int {
	if c.DecisionDwellFrames == nil {
		return 0 // default: no dwell, decisions switch immediately
	}
	return *c.DecisionDwellFrames
}

// GetWeightScheme returns the weight_scheme value or the default.
func (c *TuningConfig) GetWeightScheme() string {
	if c.WeightScheme == nil || *c.WeightScheme == "" {
		return "five_term"
	}
	return *c.WeightScheme
}

// GetMinExposureDurationSeconds returns the min_exposure_duration_seconds value or the default.
func (c *TuningConfig) GetMinExposureDurationSeconds() float64 {
	if c.MinExposureDurationSeconds == nil {
		return 2.0
	}
	return *c.MinExposureDurationSeconds
}

// GetMaxScreenCoverageFraction returns the max_screen_coverage_fraction value or the default.
func (c *TuningConfig) GetMaxScreenCoverageFraction() float64 {
	if c.MaxScreenCoverageFraction == nil {
		return 0.35
	}
	return *c.MaxScreenCoverageFraction
}

// GetTemporalWindowFrames returns the temporal_window_frames value or the default.
func (c *TuningConfig) GetTemporalWindowFrames() int {
	if c.TemporalWindowFrames == nil {
		return 15
	}
	return *c.TemporalWindowFrames
}

// GetJitterScalePx returns the jitter_scale_px value or the default.
func (c *TuningConfig) GetJitterScalePx() float64 {
	if c.JitterScalePx == nil {
		return 2.0
	}
	return *c.JitterScalePx
}

// GateThresholds assembles the quality gate thresholds from the config.
func (c *TuningConfig) GateThresholds() gate.Thresholds {
	return gate.Thresholds{
		RejectThreshold:              c.GetRejectThreshold(),
		MaxGeometryUncertainty:       c.GetMaxGeometryUncertainty(),
		MinTemporalStability:         c.GetMinTemporalStability(),
		MinDeviceCapability:          c.GetMinDeviceCapability(),
		DownscaleCapabilityThreshold: c.GetDownscaleCapabilityThreshold(),
	}
}
