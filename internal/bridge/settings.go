package bridge

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/reportflow/internal/config"
)

// Bridge defaults. The server binds loopback only unless configured otherwise.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8765
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
)

// EnvHost overrides the configured bind host.
const EnvHost = "REPORTFLOW_BRIDGE_HOST"

// Settings controls whether and where the bridge listens. Port 0 asks the
// kernel for a free port. WriteTimeout does not apply to /ws, which sets its
// own per-frame deadlines.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig reads the bridge block of the project config. A nil
// config yields a disabled bridge on the default address.
func SettingsFromConfig(cfg *config.Config) Settings {
	var s Settings
	s.Port = DefaultPort
	if cfg != nil {
		b := cfg.Project.Bridge
		s.Enabled = b.Enabled != nil && *b.Enabled
		s.Host = b.Host
		if b.Port > 0 {
			s.Port = b.Port
		}
	}
	if host, ok := os.LookupEnv(EnvHost); ok && strings.TrimSpace(host) != "" {
		s.Host = host
	}
	return s.withDefaults()
}

func (s Settings) withDefaults() Settings {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port < 0 || s.Port > 65535 {
		s.Port = DefaultPort
	}
	for _, d := range []struct {
		field *time.Duration
		def   time.Duration
	}{
		{&s.ReadTimeout, DefaultReadTimeout},
		{&s.WriteTimeout, DefaultWriteTimeout},
		{&s.IdleTimeout, DefaultIdleTimeout},
	} {
		if *d.field <= 0 {
			*d.field = d.def
		}
	}
	return s
}

// Address is the host:port the listener binds.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL is the bridge's HTTP base URL.
func (s Settings) URL() string {
	return "http://" + s.Address()
}
