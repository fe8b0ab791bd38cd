// Package config loads trackpose.yaml with environment overrides (TRACKPOSE_SECTION_KEY).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresmejia3/trackpose/internal/estimator"
	"github.com/andresmejia3/trackpose/internal/types"
	"github.com/spf13/viper"
)

type Config struct {
	Model    ModelConfig    `mapstructure:"model"`
	Video    VideoConfig    `mapstructure:"video"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Output   OutputConfig   `mapstructure:"output"`
	Log      LogConfig      `mapstructure:"log"`
}

type ModelConfig struct {
	DataDir     string        `mapstructure:"data_dir"`
	Method      string        `mapstructure:"method"`
	Backend     string        `mapstructure:"backend"` // python | onnx
	Python      string        `mapstructure:"python"`
	Script      string        `mapstructure:"script"`
	Device      string        `mapstructure:"device"`
	ONNXLibrary string        `mapstructure:"onnx_library"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`

	// Overrides replaces the config/checkpoint path of a method, keyed by method name
	Overrides map[string]MethodOverride `mapstructure:"overrides"`
}

type MethodOverride struct {
	Config     string `mapstructure:"config"`
	Checkpoint string `mapstructure:"checkpoint"`
}

type VideoConfig struct {
	Backend    string        `mapstructure:"backend"` // ffmpeg | gocv
	FFmpeg     string        `mapstructure:"ffmpeg"`
	FFprobe    string        `mapstructure:"ffprobe"`
	PixelOrder string        `mapstructure:"pixel_order"` // rgb | bgr
	CountCheck bool          `mapstructure:"count_check"`
	Robust     bool          `mapstructure:"robust"`
	TempDir    string        `mapstructure:"temp_dir"`
	Timeout    time.Duration `mapstructure:"download_timeout"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"` // debug | release
}

// Load reads configPath, or ./trackpose.yaml when configPath is empty.
// A missing default file is not an error; defaults and environment still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRACKPOSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("trackpose")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.data_dir", "/data/models")
	v.SetDefault("model.method", estimator.DefaultMethod)
	v.SetDefault("model.backend", "python")
	v.SetDefault("model.python", "python3")
	v.SetDefault("model.script", "python/pose_worker.py")
	v.SetDefault("model.device", "")
	v.SetDefault("model.onnx_library", "")
	v.SetDefault("model.load_timeout", 5*time.Minute)

	v.SetDefault("video.backend", "ffmpeg")
	v.SetDefault("video.ffmpeg", "ffmpeg")
	v.SetDefault("video.ffprobe", "ffprobe")
	v.SetDefault("video.pixel_order", "bgr")
	v.SetDefault("video.count_check", true)
	v.SetDefault("video.robust", false)
	v.SetDefault("video.temp_dir", "")
	v.SetDefault("video.download_timeout", 10*time.Minute)

	v.SetDefault("database.url", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.format", "msgpack")

	v.SetDefault("log.mode", "debug")
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Video.PixelOrder) {
	case "rgb", "bgr":
	default:
		return fmt.Errorf("video.pixel_order must be rgb or bgr, got %q", c.Video.PixelOrder)
	}
	if c.Video.Timeout < 0 || c.Redis.TTL < 0 || c.Model.LoadTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// Order returns the configured decoder pixel order.
func (v VideoConfig) Order() types.PixelOrder {
	if strings.EqualFold(v.PixelOrder, "rgb") {
		return types.OrderRGB
	}
	return types.OrderBGR
}

// ResolveMethod looks up name in the method table and applies any configured path overrides.
// Viper lower-cases map keys, so overrides match case-insensitively.
func (m ModelConfig) ResolveMethod(name string) (estimator.Method, error) {
	method, err := estimator.LookupMethod(name)
	if err != nil {
		return estimator.Method{}, err
	}
	if o, ok := m.Overrides[strings.ToLower(name)]; ok {
		method = method.WithOverrides(o.Config, o.Checkpoint)
	}
	return method, nil
}
