// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/sirupsen/logrus"
)

// Config is read from the environment (and .env, via godotenv/autoload in
// the binaries).
type Config struct {
	Port     string       `env:"PORT" envDefault:"8080"`
	LogLevel logrus.Level `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool         `env:"LOG_JSON" envDefault:"false"`

	// DatabaseURL empty selects the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`
	Migrate     bool   `env:"DB_MIGRATE" envDefault:"true"`

	// RedisAddr empty disables the historian queue.
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	HistorianQueue     string        `env:"HISTORIAN_QUEUE_NAME" envDefault:"codebreak_matches"`
	HistorianBatchSize int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	HistorianFlush     time.Duration `env:"HISTORIAN_FLUSH" envDefault:"500ms"`

	// NatsURL empty disables match announcements.
	NatsURL string `env:"NATS_URL"`

	TokenExpireTime string `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`
	KeyPrivatePath  string `env:"AUTH_PRIVATE_KEY_PATH"`
	KeyPublicPath   string `env:"AUTH_PUBLIC_KEY_PATH"`
	TriviaPath      string `env:"TRIVIA_PATH"`

	// AllowedOrigins are websocket origin patterns; "*" accepts any.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	Game Game `envPrefix:"GAME_"`
}

// Game holds room and gameplay tunables.
type Game struct {
	GuessLimitMin     int           `env:"GUESS_LIMIT_MIN" envDefault:"3"`
	GuessLimitMax     int           `env:"GUESS_LIMIT_MAX" envDefault:"20"`
	GuessLimitDefault int           `env:"GUESS_LIMIT_DEFAULT" envDefault:"10"`
	FreeCapacity      int           `env:"FREE_CAPACITY" envDefault:"8"`
	FreeMinPlayers    int           `env:"FREE_MIN_PLAYERS" envDefault:"2"`
	TurnSeconds       int           `env:"TURN_SECONDS" envDefault:"60"`
	MinTurnSeconds    int           `env:"MIN_TURN_SECONDS" envDefault:"10"`
	TriviaPoolSize    int           `env:"TRIVIA_POOL_SIZE" envDefault:"3"`
	TriviaCooldown    time.Duration `env:"TRIVIA_COOLDOWN" envDefault:"10s"`
	StarterItems      int           `env:"STARTER_ITEMS" envDefault:"3"`
	RoomIdleTTL       time.Duration `env:"ROOM_IDLE_TTL" envDefault:"30m"`
	JanitorInterval   time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`
}

// Limits converts the tunables into registry bounds.
func (g Game) Limits() room.Limits {
	return room.Limits{
		GuessLimitMin:     g.GuessLimitMin,
		GuessLimitMax:     g.GuessLimitMax,
		GuessLimitDefault: g.GuessLimitDefault,
		FreeCapacity:      g.FreeCapacity,
		FreeMinPlayers:    g.FreeMinPlayers,
		TurnSeconds:       g.TurnSeconds,
		MinTurnSeconds:    g.MinTurnSeconds,
		TriviaPoolSize:    g.TriviaPoolSize,
	}
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	g := c.Game
	if g.GuessLimitMin < 1 || g.GuessLimitMin > g.GuessLimitMax {
		return fmt.Errorf("invalid guess limit bounds [%d, %d]", g.GuessLimitMin, g.GuessLimitMax)
	}
	if g.FreeCapacity < 1 || g.FreeMinPlayers < 1 || g.FreeMinPlayers > g.FreeCapacity {
		return fmt.Errorf("invalid free room size: capacity %d, min players %d", g.FreeCapacity, g.FreeMinPlayers)
	}
	if g.TurnSeconds < g.MinTurnSeconds || g.MinTurnSeconds < 1 {
		return fmt.Errorf("invalid turn seconds %d (floor %d)", g.TurnSeconds, g.MinTurnSeconds)
	}
	if g.TriviaPoolSize < 1 {
		return fmt.Errorf("trivia pool size must be positive")
	}
	return nil
}
