package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "SPATIALVOICE"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	JoinTimeout      time.Duration `mapstructure:"join_timeout"`
	SealCloseTimeout time.Duration `mapstructure:"seal_close_timeout"`
	JoinRateLimit    int           `mapstructure:"join_rate_limit"`
	JoinRateInterval time.Duration `mapstructure:"join_rate_interval"`

	Client ClientConfig `mapstructure:"client"`
}

type ClientConfig struct {
	SignalURL  string   `mapstructure:"signal_url"`
	Lobby      string   `mapstructure:"lobby"`
	Mesh       bool     `mapstructure:"mesh"`
	ICEServers []string `mapstructure:"ice_servers"`

	TickInterval       time.Duration `mapstructure:"tick_interval"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
	ReconnectBackoff   time.Duration `mapstructure:"reconnect_backoff"`

	MaxVoiceDistance float32   `mapstructure:"max_voice_distance"`
	SampleRate       int       `mapstructure:"sample_rate"`
	CaptureFile      string    `mapstructure:"capture_file"`
	Position         []float32 `mapstructure:"position"`
}

// Pose is the configured listener position; missing axes are zero.
func (c ClientConfig) Pose() domain.Vec3 {
	var p [3]float32
	copy(p[:], c.Position)
	return domain.Vec3{X: p[0], Y: p[1], Z: p[2]}
}

// RegisterFlags adds the command-line overrides understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("mode", "", "release or debug")
	fs.Int("port", 0, "signaling endpoint listen port")
	fs.String("client.signal_url", "", "signaling endpoint websocket url")
	fs.String("client.lobby", "", "lobby to join, empty creates a new one")
	fs.Bool("client.mesh", false, "request a mesh lobby instead of star")
	fs.String("client.capture_file", "", "mp3 file used as microphone")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "spatialvoice-dev-secret")
	v.SetDefault("join_timeout", "10s")
	v.SetDefault("seal_close_timeout", "10s")
	v.SetDefault("join_rate_limit", 5)
	v.SetDefault("join_rate_interval", "10s")

	v.SetDefault("client.signal_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client.lobby", "")
	v.SetDefault("client.mesh", false)
	v.SetDefault("client.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("client.tick_interval", "20ms")
	v.SetDefault("client.negotiation_timeout", "30s")
	v.SetDefault("client.connect_timeout", "10s")
	v.SetDefault("client.reconnect_attempts", 3)
	v.SetDefault("client.reconnect_backoff", "2s")
	v.SetDefault("client.max_voice_distance", 20)
	v.SetDefault("client.sample_rate", 48000)
	v.SetDefault("client.capture_file", "")
	v.SetDefault("client.position", []float32{0, 0, 0})
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then SPATIALVOICE_*
// environment variables, then flags that were set explicitly.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Changed && bindErr == nil {
				bindErr = v.BindPFlag(f.Name, f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.JoinRateLimit <= 0 {
		errs = append(errs, errors.New("join_rate_limit must be positive"))
	}
	if c.Client.TickInterval <= 0 {
		errs = append(errs, errors.New("client.tick_interval must be positive"))
	}
	if c.Client.MaxVoiceDistance <= 0 {
		errs = append(errs, errors.New("client.max_voice_distance must be positive"))
	}
	if c.Client.SampleRate <= 0 {
		errs = append(errs, errors.New("client.sample_rate must be positive"))
	}
	if c.Client.ReconnectAttempts < 0 {
		errs = append(errs, errors.New("client.reconnect_attempts must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
