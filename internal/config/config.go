package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	OpenAI   OpenAI
	Runway   Runway
	Pipeline Pipeline
	Storage  Storage
}

type OpenAI struct {
	APIKey  string        `env:"OPENAI_API_KEY"`
	BaseURL string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model   string        `env:"OPENAI_MODEL" envDefault:"gpt-4"`
	Timeout time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`
}

type Runway struct {
	APIKey       string        `env:"RUNWAY_API_KEY"`
	BaseURL      string        `env:"RUNWAY_BASE_URL" envDefault:"https://api.dev.runwayml.com/v1"`
	Version      string        `env:"RUNWAY_VERSION" envDefault:"2024-11-06"`
	PollInterval time.Duration `env:"RUNWAY_POLL_INTERVAL" envDefault:"5s"`
}

type Pipeline struct {
	MaxRetries int           `env:"PIPELINE_MAX_RETRIES" envDefault:"3"`
	RetryDelay time.Duration `env:"PIPELINE_RETRY_DELAY" envDefault:"10s"`
	ImageDelay time.Duration `env:"PIPELINE_IMAGE_DELAY" envDefault:"2s"`
	ClipDelay  time.Duration `env:"PIPELINE_CLIP_DELAY" envDefault:"5s"`
}

type Storage struct {
	OutputDir     string        `env:"OUTPUT_DIR" envDefault:"output"`
	TempDir       string        `env:"TEMP_DIR" envDefault:"temp"`
	Retention     time.Duration `env:"TASK_RETENTION" envDefault:"24h"`
	SweepInterval time.Duration `env:"TASK_SWEEP_INTERVAL" envDefault:"5m"`
	FFmpegBin     string        `env:"FFMPEG_BIN" envDefault:"ffmpeg"`
}

func Load() *Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}

	return &c
}
