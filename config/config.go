// Package config binds the settings every cmd/ entry point needs (listen
// address, persistence DSN, presence broker address, protocol version,
// global password) through viper, so they are overridable by flag,
// environment variable, or config file uniformly. Grounded on
// the-mhdi-eSIaaS's pkg/config.LoadConfig, generalized from a single YAML
// path to cobra-bound flags with a GOATEE_ env prefix.
package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Server holds the settings common to goateed and goatee-host's server
// half.
type Server struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	DSN             string `mapstructure:"dsn"`
	RedisAddr       string `mapstructure:"redis_addr"`
	GlobalPassword  string `mapstructure:"global_password"`
	ProtocolVersion uint32 `mapstructure:"protocol_version"`
	LogLevel        string `mapstructure:"log_level"`
}

// BindServerFlags registers the server config's flags on cmd and binds them
// through v, so GOATEE_LISTEN_ADDR etc. and a config file (if set via
// --config) both work.
func BindServerFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().String("listen-addr", "localhost:8080", "address to listen on")
	cmd.Flags().String("dsn", "", "Postgres DSN for session persistence (empty disables persistence)")
	cmd.Flags().String("redis-addr", "", "Redis address for cross-process presence fan-out (empty uses an in-process broker)")
	cmd.Flags().String("global-password", "", "shared password required at login (empty disables the check)")
	cmd.Flags().Uint32("protocol-version", 1, "wire protocol version advertised in welcome")
	cmd.Flags().String("log-level", "info", "debug, info, warn, or error")

	v.BindPFlag("listen_addr", cmd.Flags().Lookup("listen-addr"))
	v.BindPFlag("dsn", cmd.Flags().Lookup("dsn"))
	v.BindPFlag("redis_addr", cmd.Flags().Lookup("redis-addr"))
	v.BindPFlag("global_password", cmd.Flags().Lookup("global-password"))
	v.BindPFlag("protocol_version", cmd.Flags().Lookup("protocol-version"))
	v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
}

// LoadServer reads a bound viper instance's settings into a Server, after
// AutomaticEnv/config-file setup (ApplyConfigFile) has run in the caller's
// RunE.
func LoadServer(v *viper.Viper) (Server, error) {
	var s Server
	if err := v.Unmarshal(&s); err != nil {
		return Server{}, err
	}
	return s, nil
}

// Client holds the settings goatee-client and goatee-host's client half
// need to dial and log in.
type Client struct {
	ServerAddr     string `mapstructure:"server_addr"`
	Name           string `mapstructure:"name"`
	GlobalPassword string `mapstructure:"global_password"`
	UserPassword   string `mapstructure:"user_password"`
	LogLevel       string `mapstructure:"log_level"`
}

// BindClientFlags registers goatee-client's flags on cmd and binds them
// through v.
func BindClientFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().String("server-addr", "ws://localhost:8080/", "websocket URL of the goateed server to dial")
	cmd.Flags().String("name", "demo", "login name")
	cmd.Flags().String("global-password", "", "global password, if the server requires one")
	cmd.Flags().String("user-password", "", "per-user password")
	cmd.Flags().String("log-level", "info", "debug, info, warn, or error")

	v.BindPFlag("server_addr", cmd.Flags().Lookup("server-addr"))
	v.BindPFlag("name", cmd.Flags().Lookup("name"))
	v.BindPFlag("global_password", cmd.Flags().Lookup("global-password"))
	v.BindPFlag("user_password", cmd.Flags().Lookup("user-password"))
	v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
}

// LoadClient reads a bound viper instance's settings into a Client.
func LoadClient(v *viper.Viper) (Client, error) {
	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return Client{}, err
	}
	return c, nil
}

// ApplyConfigFile layers a YAML config file at path (if non-empty) and
// GOATEE_-prefixed environment variables under v's already-bound flags.
// Viper's precedence (flag, if explicitly set > env > config file >
// default) does the rest: an unset flag falls through to the file or
// environment instead of shadowing them with its zero-value default.
func ApplyConfigFile(v *viper.Viper, path string) error {
	v.SetEnvPrefix("GOATEE")
	v.AutomaticEnv()
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	return v.ReadInConfig()
}
