package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so configuration files can use strings such as
// "16ms" while numeric nanosecond values still decode.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null decode to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: line %d: expected a scalar", node.Line)
	}
	switch node.ShortTag() {
	case "!!null":
		*d = 0
		return nil
	case "!!int":
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(f))
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures every tunable of a simulation host.
type Config struct {
	Host      HostConfig      `json:"host" yaml:"host"`
	Terrain   TerrainConfig   `json:"terrain" yaml:"terrain"`
	Water     WaterConfig     `json:"water" yaml:"water"`
	Structure StructureConfig `json:"structure" yaml:"structure"`
	Acoustics AcousticsConfig `json:"acoustics" yaml:"acoustics"`
	Weather   WeatherConfig   `json:"weather" yaml:"weather"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
}

type HostConfig struct {
	FrameInterval  Duration `json:"frameInterval" yaml:"frameInterval"`   // e.g. "16ms"
	MaxFrames      int      `json:"maxFrames" yaml:"maxFrames"`           // 0 runs until cancelled
	DebrisPerFrame int      `json:"debrisPerFrame" yaml:"debrisPerFrame"` // queued debris cleared per frame, 0 clears all
	RemoveDebris   bool     `json:"removeDebris" yaml:"removeDebris"`
}

type Cell struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

type Region struct {
	Min Cell `json:"min" yaml:"min"`
	Max Cell `json:"max" yaml:"max"` // inclusive
}

type TerrainConfig struct {
	Seed        int64   `json:"seed" yaml:"seed"`
	Frequency   float64 `json:"frequency" yaml:"frequency"`
	Amplitude   float64 `json:"amplitude" yaml:"amplitude"`
	Octaves     int     `json:"octaves" yaml:"octaves"`
	Persistence float64 `json:"persistence" yaml:"persistence"`
	Lacunarity  float64 `json:"lacunarity" yaml:"lacunarity"`
	BaseHeight  int     `json:"baseHeight" yaml:"baseHeight"`
	Region      Region  `json:"region" yaml:"region"`
	Workers     int     `json:"workers" yaml:"workers"` // 0 uses GOMAXPROCS
}

type WaterSource struct {
	Cell `yaml:",inline"`
	Rate float32 `json:"rate" yaml:"rate"` // level added per frame
}

type WaterConfig struct {
	PerFrameBudget int           `json:"perFrameBudget" yaml:"perFrameBudget"`
	Sources        []WaterSource `json:"sources" yaml:"sources"`
}

type StructureConfig struct {
	PerFrameBudget   Duration `json:"perFrameBudget" yaml:"perFrameBudget"`
	DensityThreshold float32  `json:"densityThreshold" yaml:"densityThreshold"`
}

type AcousticsConfig struct {
	MaxVoxelsPerFrame int     `json:"maxVoxelsPerFrame" yaml:"maxVoxelsPerFrame"`
	VoxelSize         float32 `json:"voxelSize" yaml:"voxelSize"` // metres per voxel edge
	Threshold         float32 `json:"threshold" yaml:"threshold"`
	Listener          Cell    `json:"listener" yaml:"listener"`
}

type WeatherConfig struct {
	DayLength          Duration `json:"dayLength" yaml:"dayLength"`
	WeatherMinDuration Duration `json:"weatherMinDuration" yaml:"weatherMinDuration"`
	WeatherMaxDuration Duration `json:"weatherMaxDuration" yaml:"weatherMaxDuration"`
	RainChance         float64  `json:"rainChance" yaml:"rainChance"`
	StormChance        float64  `json:"stormChance" yaml:"stormChance"`
	RainRate           float32  `json:"rainRate" yaml:"rainRate"` // level per wet column per frame at full intensity
	Seed               int64    `json:"seed" yaml:"seed"`
}

type TelemetryConfig struct {
	Listen   string   `json:"listen" yaml:"listen"` // "" disables the websocket endpoint
	Path     string   `json:"path" yaml:"path"`
	Interval Duration `json:"interval" yaml:"interval"`
}

type StorageConfig struct {
	Path string `json:"path" yaml:"path"` // chunk log file, "" disables persistence
}

// Load reads configuration from a JSON or YAML file when provided. An empty
// path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Host: HostConfig{
			FrameInterval:  Duration(16 * time.Millisecond),
			DebrisPerFrame: 256,
			RemoveDebris:   true,
		},
		Terrain: TerrainConfig{
			Seed:        1337,
			Frequency:   0.02,
			Amplitude:   12,
			Octaves:     4,
			Persistence: 0.5,
			Lacunarity:  2.0,
			BaseHeight:  8,
			Region: Region{
				Min: Cell{X: -32, Y: 0, Z: -32},
				Max: Cell{X: 31, Y: 31, Z: 31},
			},
		},
		Water: WaterConfig{
			PerFrameBudget: 4096,
			Sources:        []WaterSource{},
		},
		Structure: StructureConfig{
			PerFrameBudget:   Duration(time.Millisecond),
			DensityThreshold: 0.5,
		},
		Acoustics: AcousticsConfig{
			MaxVoxelsPerFrame: 2048,
			VoxelSize:         1.0,
			Threshold:         0.5,
			Listener:          Cell{X: 0, Y: 24, Z: 0},
		},
		Weather: WeatherConfig{
			DayLength:          Duration(20 * time.Minute),
			WeatherMinDuration: Duration(30 * time.Second),
			WeatherMaxDuration: Duration(2 * time.Minute),
			RainChance:         0.35,
			StormChance:        0.15,
			RainRate:           0.02,
			Seed:               1337,
		},
		Telemetry: TelemetryConfig{
			Path:     "/ws",
			Interval: Duration(250 * time.Millisecond),
		},
	}
}

func (c *Config) Validate() error {
	if c.Host.FrameInterval <= 0 {
		return errors.New("host.frameInterval must be positive")
	}
	if c.Host.MaxFrames < 0 {
		return errors.New("host.maxFrames cannot be negative")
	}
	if c.Host.DebrisPerFrame < 0 {
		return errors.New("host.debrisPerFrame cannot be negative")
	}
	if c.Terrain.Octaves <= 0 {
		return errors.New("terrain.octaves must be positive")
	}
	if c.Terrain.Workers < 0 {
		return errors.New("terrain.workers cannot be negative")
	}
	r := c.Terrain.Region
	if r.Max.X < r.Min.X || r.Max.Y < r.Min.Y || r.Max.Z < r.Min.Z {
		return errors.New("terrain.region max must not be below min")
	}
	if c.Water.PerFrameBudget <= 0 {
		return errors.New("water.perFrameBudget must be positive")
	}
	for i, src := range c.Water.Sources {
		if src.Rate <= 0 || src.Rate > 1 {
			return fmt.Errorf("water.sources[%d].rate must be in (0,1]", i)
		}
	}
	if c.Structure.PerFrameBudget <= 0 {
		return errors.New("structure.perFrameBudget must be positive")
	}
	if c.Structure.DensityThreshold <= 0 || c.Structure.DensityThreshold > 1 {
		return errors.New("structure.densityThreshold must be in (0,1]")
	}
	if c.Acoustics.MaxVoxelsPerFrame <= 0 {
		return errors.New("acoustics.maxVoxelsPerFrame must be positive")
	}
	if c.Acoustics.VoxelSize <= 0 {
		return errors.New("acoustics.voxelSize must be positive")
	}
	if c.Acoustics.Threshold <= 0 || c.Acoustics.Threshold > 1 {
		return errors.New("acoustics.threshold must be in (0,1]")
	}
	if c.Weather.WeatherMaxDuration > 0 && c.Weather.WeatherMaxDuration < c.Weather.WeatherMinDuration {
		return errors.New("weather.weatherMaxDuration must be >= weatherMinDuration")
	}
	if c.Weather.StormChance < 0 || c.Weather.RainChance < 0 {
		return errors.New("weather storm/rain chances cannot be negative")
	}
	if c.Weather.StormChance+c.Weather.RainChance > 1.0 {
		return errors.New("weather storm+rain chance must be <= 1")
	}
	if c.Weather.RainRate < 0 {
		return errors.New("weather.rainRate cannot be negative")
	}
	if c.Telemetry.Listen != "" && !strings.HasPrefix(c.Telemetry.Path, "/") {
		return errors.New("telemetry.path must start with /")
	}
	if c.Telemetry.Interval < 0 {
		return errors.New("telemetry.interval cannot be negative")
	}
	return nil
}
