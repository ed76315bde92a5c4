package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/banshee-data/posecapture/internal/session"
)

// Command sources accepted by command_source.
const (
	CommandSourceStdin  = "stdin"
	CommandSourceSerial = "serial"
	CommandSourceNone   = "none"
)

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// SessionConfig holds the session-scoped settings for one capture run.
// Every field is optional; the Get* methods supply defaults for unset
// fields, so partial files and flag overrides compose safely.
type SessionConfig struct {
	// Inputs
	FrontOrigin *string `json:"front_origin,omitempty" toml:"front_origin,omitempty"`
	SideOrigin  *string `json:"side_origin,omitempty" toml:"side_origin,omitempty"`
	FFmpegPath  *string `json:"ffmpeg_path,omitempty" toml:"ffmpeg_path,omitempty"`
	FFprobePath *string `json:"ffprobe_path,omitempty" toml:"ffprobe_path,omitempty"`

	// Timing
	StartOffsetMs *int64   `json:"start_offset_ms,omitempty" toml:"start_offset_ms,omitempty"`
	FallbackFPS   *float64 `json:"fallback_fps,omitempty" toml:"fallback_fps,omitempty"`

	// Detector
	ModelPath           *string  `json:"model_path,omitempty" toml:"model_path,omitempty"`
	DetectorCommand     *string  `json:"detector_command,omitempty" toml:"detector_command,omitempty"`
	MinDetectConfidence *float64 `json:"min_detect_confidence,omitempty" toml:"min_detect_confidence,omitempty"`

	// Outputs
	OutputCSV     *string `json:"output_csv,omitempty" toml:"output_csv,omitempty"`
	OutputDB      *string `json:"output_db,omitempty" toml:"output_db,omitempty"`
	SnapshotDir   *string `json:"snapshot_dir,omitempty" toml:"snapshot_dir,omitempty"`
	SnapshotEvery *int    `json:"snapshot_every,omitempty" toml:"snapshot_every,omitempty"`

	// Session control
	Exercise         *string `json:"exercise,omitempty" toml:"exercise,omitempty"`
	GateOnExercising *bool   `json:"gate_on_exercising,omitempty" toml:"gate_on_exercising,omitempty"`
	CommandSource    *string `json:"command_source,omitempty" toml:"command_source,omitempty"`
	SerialPort       *string `json:"serial_port,omitempty" toml:"serial_port,omitempty"`
	SerialBaudRate   *int    `json:"serial_baud_rate,omitempty" toml:"serial_baud_rate,omitempty"`
	AdminListen      *string `json:"admin_listen,omitempty" toml:"admin_listen,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// String, Int, Int64, Float64 and Bool are exported pointer helpers for flag
// overrides and tests.
func String(v string) *string    { return ptrString(v) }
func Int(v int) *int             { return ptrInt(v) }
func Int64(v int64) *int64       { return ptrInt64(v) }
func Float64(v float64) *float64 { return ptrFloat64(v) }
func Bool(v bool) *bool          { return ptrBool(v) }

// DefaultSessionConfig returns a SessionConfig with every field populated by
// its default value.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		FrontOrigin:         ptrString(""),
		SideOrigin:          ptrString(""),
		FFmpegPath:          ptrString("ffmpeg"),
		FFprobePath:         ptrString("ffprobe"),
		StartOffsetMs:       ptrInt64(100),
		FallbackFPS:         ptrFloat64(30.0),
		ModelPath:           ptrString("./pose_landmarker_full.task"),
		DetectorCommand:     ptrString("python3 scripts/pose_worker.py"),
		MinDetectConfidence: ptrFloat64(0.5),
		OutputCSV:           ptrString("dane_3d.csv"),
		OutputDB:            ptrString(""),
		SnapshotDir:         ptrString(""),
		SnapshotEvery:       ptrInt(0),
		Exercise:            ptrString(session.ShoulderMobility.Key()),
		GateOnExercising:    ptrBool(false),
		CommandSource:       ptrString(CommandSourceStdin),
		SerialPort:          ptrString("/dev/ttyUSB0"),
		SerialBaudRate:      ptrInt(9600),
		AdminListen:         ptrString(""),
	}
}

// EmptySessionConfig returns a SessionConfig with all fields set to nil.
func EmptySessionConfig() *SessionConfig {
	return &SessionConfig{}
}

// LoadSessionConfig loads a SessionConfig from a .json or .toml file.
// Fields omitted from the file stay nil and resolve to defaults through the
// Get* methods.
func LoadSessionConfig(path string) (*SessionConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySessionConfig()
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Apply copies every non-nil field of overrides onto c.
func (c *SessionConfig) Apply(overrides *SessionConfig) {
	if overrides == nil {
		return
	}
	if overrides.FrontOrigin != nil {
		c.FrontOrigin = overrides.FrontOrigin
	}
	if overrides.SideOrigin != nil {
		c.SideOrigin = overrides.SideOrigin
	}
	if overrides.FFmpegPath != nil {
		c.FFmpegPath = overrides.FFmpegPath
	}
	if overrides.FFprobePath != nil {
		c.FFprobePath = overrides.FFprobePath
	}
	if overrides.StartOffsetMs != nil {
		c.StartOffsetMs = overrides.StartOffsetMs
	}
	if overrides.FallbackFPS != nil {
		c.FallbackFPS = overrides.FallbackFPS
	}
	if overrides.ModelPath != nil {
		c.ModelPath = overrides.ModelPath
	}
	if overrides.DetectorCommand != nil {
		c.DetectorCommand = overrides.DetectorCommand
	}
	if overrides.MinDetectConfidence != nil {
		c.MinDetectConfidence = overrides.MinDetectConfidence
	}
	if overrides.OutputCSV != nil {
		c.OutputCSV = overrides.OutputCSV
	}
	if overrides.OutputDB != nil {
		c.OutputDB = overrides.OutputDB
	}
	if overrides.SnapshotDir != nil {
		c.SnapshotDir = overrides.SnapshotDir
	}
	if overrides.SnapshotEvery != nil {
		c.SnapshotEvery = overrides.SnapshotEvery
	}
	if overrides.Exercise != nil {
		c.Exercise = overrides.Exercise
	}
	if overrides.GateOnExercising != nil {
		c.GateOnExercising = overrides.GateOnExercising
	}
	if overrides.CommandSource != nil {
		c.CommandSource = overrides.CommandSource
	}
	if overrides.SerialPort != nil {
		c.SerialPort = overrides.SerialPort
	}
	if overrides.SerialBaudRate != nil {
		c.SerialBaudRate = overrides.SerialBaudRate
	}
	if overrides.AdminListen != nil {
		c.AdminListen = overrides.AdminListen
	}
}

// Validate checks that the configuration values are valid.
func (c *SessionConfig) Validate() error {
	if c.StartOffsetMs != nil && *c.StartOffsetMs <= 0 {
		return fmt.Errorf("start_offset_ms must be positive, got %d", *c.StartOffsetMs)
	}

	if c.FallbackFPS != nil && *c.FallbackFPS <= 0 {
		return fmt.Errorf("fallback_fps must be positive, got %f", *c.FallbackFPS)
	}

	if c.MinDetectConfidence != nil {
		if *c.MinDetectConfidence < 0 || *c.MinDetectConfidence > 1 {
			return fmt.Errorf("min_detect_confidence must be between 0 and 1, got %f", *c.MinDetectConfidence)
		}
	}

	if c.SnapshotEvery != nil && *c.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every must be non-negative, got %d", *c.SnapshotEvery)
	}

	if c.SerialBaudRate != nil && *c.SerialBaudRate < 0 {
		return fmt.Errorf("serial_baud_rate must be non-negative, got %d", *c.SerialBaudRate)
	}

	if c.Exercise != nil {
		if _, err := session.ParseExerciseType(*c.Exercise); err != nil {
			return err
		}
	}

	if c.CommandSource != nil {
		switch strings.ToLower(strings.TrimSpace(*c.CommandSource)) {
		case "", CommandSourceStdin, CommandSourceSerial, CommandSourceNone:
		default:
			return fmt.Errorf("command_source must be one of %q, %q or %q, got %q",
				CommandSourceStdin, CommandSourceSerial, CommandSourceNone, *c.CommandSource)
		}
	}

	return nil
}

// ValidateForCapture additionally requires both origins to be set.
func (c *SessionConfig) ValidateForCapture() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.GetFrontOrigin()) == "" {
		return fmt.Errorf("front origin is required")
	}
	if strings.TrimSpace(c.GetSideOrigin()) == "" {
		return fmt.Errorf("side origin is required")
	}
	return nil
}

// GetFrontOrigin returns the front_origin value or the default.
func (c *SessionConfig) GetFrontOrigin() string {
	if c.FrontOrigin == nil {
		return ""
	}
	return *c.FrontOrigin
}

// GetSideOrigin returns the side_origin value or the default.
func (c *SessionConfig) GetSideOrigin() string {
	if c.SideOrigin == nil {
		return ""
	}
	return *c.SideOrigin
}

// GetFFmpegPath returns the ffmpeg_path value or the default.
func (c *SessionConfig) GetFFmpegPath() string {
	if c.FFmpegPath == nil || *c.FFmpegPath == "" {
		return "ffmpeg"
	}
	return *c.FFmpegPath
}

// GetFFprobePath returns the ffprobe_path value or the default.
func (c *SessionConfig) GetFFprobePath() string {
	if c.FFprobePath == nil || *c.FFprobePath == "" {
		return "ffprobe"
	}
	return *c.FFprobePath
}

// GetStartOffsetMs returns the start_offset_ms value or the default.
func (c *SessionConfig) GetStartOffsetMs() int64 {
	if c.StartOffsetMs == nil {
		return 100
	}
	return *c.StartOffsetMs
}

// GetFallbackFPS returns the fallback_fps value or the default.
func (c *SessionConfig) GetFallbackFPS() float64 {
	if c.FallbackFPS == nil {
		return 30.0
	}
	return *c.FallbackFPS
}

// GetModelPath returns the model_path value or the default.
func (c *SessionConfig) GetModelPath() string {
	if c.ModelPath == nil {
		return "./pose_landmarker_full.task"
	}
	return *c.ModelPath
}

// GetDetectorCommand returns detector_command split into argv.
func (c *SessionConfig) GetDetectorCommand() []string {
	if c.DetectorCommand == nil || strings.TrimSpace(*c.DetectorCommand) == "" {
		return []string{"python3", "scripts/pose_worker.py"}
	}
	return strings.Fields(*c.DetectorCommand)
}

// GetMinDetectConfidence returns the min_detect_confidence value or the default.
func (c *SessionConfig) GetMinDetectConfidence() float64 {
	if c.MinDetectConfidence == nil {
		return 0.5
	}
	return *c.MinDetectConfidence
}

// GetOutputCSV returns the output_csv value or the default.
func (c *SessionConfig) GetOutputCSV() string {
	if c.OutputCSV == nil {
		return "dane_3d.csv"
	}
	return *c.OutputCSV
}

// GetOutputDB returns the output_db value; empty disables the SQLite mirror.
func (c *SessionConfig) GetOutputDB() string {
	if c.OutputDB == nil {
		return ""
	}
	return *c.OutputDB
}

// GetSnapshotDir returns the snapshot_dir value; empty disables snapshots.
func (c *SessionConfig) GetSnapshotDir() string {
	if c.SnapshotDir == nil {
		return ""
	}
	return *c.SnapshotDir
}

// GetSnapshotEvery returns the snapshot_every value or the default.
func (c *SessionConfig) GetSnapshotEvery() int {
	if c.SnapshotEvery == nil {
		return 0
	}
	return *c.SnapshotEvery
}

// GetExercise returns the parsed exercise type, ShoulderMobility when unset
// or unparseable.
func (c *SessionConfig) GetExercise() session.ExerciseType {
	if c.Exercise == nil {
		return session.ShoulderMobility
	}
	ex, err := session.ParseExerciseType(*c.Exercise)
	if err != nil {
		return session.ShoulderMobility
	}
	return ex
}

// GetGateOnExercising returns the gate_on_exercising value or the default.
func (c *SessionConfig) GetGateOnExercising() bool {
	if c.GateOnExercising == nil {
		return false // default: records are committed regardless of state
	}
	return *c.GateOnExercising
}

// GetCommandSource returns the normalised command_source value or the default.
func (c *SessionConfig) GetCommandSource() string {
	if c.CommandSource == nil || strings.TrimSpace(*c.CommandSource) == "" {
		return CommandSourceStdin
	}
	return strings.ToLower(strings.TrimSpace(*c.CommandSource))
}

// GetSerialPort returns the serial_port value or the default.
func (c *SessionConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetSerialBaudRate returns the serial_baud_rate value or the default.
func (c *SessionConfig) GetSerialBaudRate() int {
	if c.SerialBaudRate == nil || *c.SerialBaudRate == 0 {
		return 9600
	}
	return *c.SerialBaudRate
}

// GetAdminListen returns the admin_listen value; empty disables the debug
// listener.
func (c *SessionConfig) GetAdminListen() string {
	if c.AdminListen == nil {
		return ""
	}
	return *c.AdminListen
}
