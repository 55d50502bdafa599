package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug     bool   `env:"DEBUG" envDefault:"false"`
	Port      string `env:"PORT" envDefault:"3000"`
	Domain    string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret string `env:"JWT_SECRET,required"`

	// MediaURL is handed to clients together with the room token and is
	// the endpoint the media session connects to.
	MediaURL string `env:"MEDIA_URL" envDefault:"ws://localhost:3000/ws/media"`

	// TokenTTL bounds how long a room credential stays valid.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"4h"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	TurnUDPServer webrtc.ICEServer
	TurnTCPServer webrtc.ICEServer

	Coturn   CoturnConfig
	Postgres PostgresConfig
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"liveshow"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

type CoturnConfig struct {
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if c.Coturn.Host != "" {
		c.TurnUDPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.Coturn.Host)},
			Username:   c.Coturn.Username,
			Credential: c.Coturn.Password,
		}

		c.TurnTCPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.Coturn.Host)},
			Username:   c.Coturn.Username,
			Credential: c.Coturn.Password,
		}
	}

	return &c, nil
}
