package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

const envPrefix = "APP"

type Settings struct {
	Application ApplicationSettings `mapstructure:"application"`
	Database    DatabaseSettings    `mapstructure:"database"`
	Log         LogSettings         `mapstructure:"log"`
	Tracing     TracingSettings     `mapstructure:"tracing"`
}

type ApplicationSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ServiceName     string        `mapstructure:"service_name"`
	ServiceVersion  string        `mapstructure:"service_version"`
	GinMode         string        `mapstructure:"gin_mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr is the listen address for the HTTP server.
func (a ApplicationSettings) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

type DatabaseSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DatabaseName    string        `mapstructure:"database_name"`
	RequireSSL      bool          `mapstructure:"require_ssl"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// ConnectionString returns a postgres URL pointing at DatabaseName.
func (d DatabaseSettings) ConnectionString() string {
	return d.connectionString(d.DatabaseName)
}

// ConnectionStringWithoutDB points at the server's maintenance database.
// It is used to issue CREATE DATABASE before the target database exists.
func (d DatabaseSettings) ConnectionStringWithoutDB() string {
	return d.connectionString("postgres")
}

// WithDatabase returns a copy of the settings bound to another database name.
func (d DatabaseSettings) WithDatabase(name string) DatabaseSettings {
	d.DatabaseName = name
	return d
}

func (d DatabaseSettings) connectionString(dbName string) string {
	sslMode := "disable"
	if d.RequireSSL {
		sslMode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + dbName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

type LogSettings struct {
	Level string `mapstructure:"level"`
}

type TracingSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads embedded defaults, merges the YAML file at path (if provided) and
// applies APP_* environment overrides, e.g. APP_DATABASE_HOST.
func Load(path string) (Settings, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Settings{}, fmt.Errorf("read default config: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Settings{}, fmt.Errorf("merge config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	return settings, nil
}
