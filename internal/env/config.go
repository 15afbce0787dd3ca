package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Region    string `env:"SAMPLECAST_REGION"`
	DebugHTTP bool   `env:"SAMPLECAST_DEBUG_HTTP"`
	LogLevel  string `env:"SAMPLECAST_LOG_LEVEL,default=info"`

	// QoSFile is an optional YAML QoS profile, see LoadQoS
	QoSFile      string `env:"SAMPLECAST_QOS_FILE"`
	HistoryDepth int    `env:"SAMPLECAST_HISTORY_DEPTH,default=1"`
	Shards       int    `env:"SAMPLECAST_SHARDS,default=16"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
