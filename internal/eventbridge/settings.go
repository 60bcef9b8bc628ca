package eventbridge

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/jaegis/internal/config"
)

// Status server defaults. The server only binds loopback unless told otherwise.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8765
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
)

// Environment variables that override .jaegis/config.yaml.
const (
	EnvStatusEnabled = "JAEGIS_STATUS_ENABLED"
	EnvStatusHost    = "JAEGIS_STATUS_HOST"
	EnvStatusPort    = "JAEGIS_STATUS_PORT"
)

// Settings is the runtime configuration of the status server.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultSettings returns a disabled server on the default address.
func DefaultSettings() Settings {
	return Settings{
		Host:         DefaultHost,
		Port:         DefaultPort,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
}

// SettingsFromConfig resolves the server settings for a project. The server
// follows the enableMonitoring preference unless status_server.enabled is set;
// the environment wins over both.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	if cfg != nil {
		s.fromProject(cfg)
	}
	s.fromEnv(os.LookupEnv)
	s.sanitize()
	return s
}

func (s *Settings) fromProject(cfg *config.Config) {
	section := cfg.Project.StatusServer
	s.Enabled = cfg.Bool(config.PrefEnableMonitoring, false)
	if section.Enabled != nil {
		s.Enabled = *section.Enabled
	}
	if host := strings.TrimSpace(section.Host); host != "" {
		s.Host = host
	}
	if isValidPort(section.Port) {
		s.Port = section.Port
	}
}

// fromEnv applies overrides; malformed values are ignored.
func (s *Settings) fromEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvStatusEnabled); ok {
		if enabled, err := strconv.ParseBool(v); err == nil {
			s.Enabled = enabled
		}
	}
	if v, ok := get(EnvStatusHost); ok {
		s.Host = v
	}
	if v, ok := get(EnvStatusPort); ok {
		if port, err := strconv.Atoi(v); err == nil && isValidPort(port) {
			s.Port = port
		}
	}
}

// sanitize restores defaults for unusable values. Port 0 is kept so tests can
// bind an ephemeral port.
func (s *Settings) sanitize() {
	def := DefaultSettings()
	if s.Host = strings.TrimSpace(s.Host); s.Host == "" {
		s.Host = def.Host
	}
	if s.Port < 0 || s.Port > 65535 {
		s.Port = def.Port
	}
	for _, pair := range []struct {
		v   *time.Duration
		def time.Duration
	}{
		{&s.ReadTimeout, def.ReadTimeout},
		{&s.WriteTimeout, def.WriteTimeout},
		{&s.IdleTimeout, def.IdleTimeout},
	} {
		if *pair.v <= 0 {
			*pair.v = pair.def
		}
	}
}

// Address is the bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL is the base URL clients should use.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
