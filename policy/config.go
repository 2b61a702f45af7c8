package policy

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/enclavevm/enclave/errors"
)

// Defaults applied by FromConfig when the corresponding option is zero.
const (
	DefaultMaxMemory     = 100 << 20 // 100 MiB
	DefaultMaxCPUTime    = 5000 * time.Millisecond
	DefaultMaxStackDepth = 1024
)

// Config is the flat option set a Policy can be built from. The zero value
// of every capability is the most restrictive one; zero limits take the
// package defaults.
type Config struct {
	MaxMemory     uint64   `yaml:"max_memory"`
	MaxCPUTimeMS  uint64   `yaml:"max_cpu_time"`
	MaxStackDepth int      `yaml:"max_stack_depth"`
	AllowNet      bool     `yaml:"allow_net"`
	AllowEnv      bool     `yaml:"allow_env"`
	AllowThreads  bool     `yaml:"allow_threads"`
	FSPath        string   `yaml:"fs_path"`
	FSWrite       bool     `yaml:"fs_write"`
	NetHosts      []string `yaml:"net_hosts"`
}

// FromConfig builds a Policy from a flat option set. Net host entries are
// "pattern" or "pattern:port"; fs_path scopes filesystem access, read-only
// unless fs_write is set.
func FromConfig(cfg Config) (*Policy, error) {
	p := &Policy{
		MaxMemory:     cfg.MaxMemory,
		MaxCPUTime:    time.Duration(cfg.MaxCPUTimeMS) * time.Millisecond,
		MaxStackDepth: cfg.MaxStackDepth,
		AllowNet:      cfg.AllowNet,
		AllowEnv:      cfg.AllowEnv,
		AllowThreads:  cfg.AllowThreads,
	}
	if p.MaxMemory == 0 {
		p.MaxMemory = DefaultMaxMemory
	}
	if p.MaxCPUTime == 0 {
		p.MaxCPUTime = DefaultMaxCPUTime
	}
	if p.MaxStackDepth == 0 {
		p.MaxStackDepth = DefaultMaxStackDepth
	}

	if cfg.FSPath != "" {
		mode := FSReadOnly
		if cfg.FSWrite {
			mode = FSReadWrite
		}
		p.FS = FSAccess{Mode: mode, Dir: cfg.FSPath}
	}

	for _, entry := range cfg.NetHosts {
		rule, err := parseNetHost(entry)
		if err != nil {
			return nil, err
		}
		p.NetRules = append(p.NetRules, rule)
	}
	return p, nil
}

// LoadFile reads a YAML policy configuration and builds a Policy from it.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read policy file")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse policy file")
	}
	return FromConfig(cfg)
}

func parseNetHost(entry string) (NetRule, error) {
	host, portStr, found := strings.Cut(entry, ":")
	if host == "" {
		return NetRule{}, errors.InvalidInput(errors.PhaseConfig,
			"empty host in net_hosts entry "+strconv.Quote(entry))
	}
	if !found {
		return NetRule{Host: host}, nil
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return NetRule{}, errors.InvalidInput(errors.PhaseConfig,
			"invalid port in net_hosts entry "+strconv.Quote(entry))
	}
	return NetRule{Host: host, Port: uint16(port)}, nil
}

// Permissive returns a policy with broad grants and generous limits,
// intended for development. Untrusted code should never run under it.
func Permissive() *Policy {
	return &Policy{
		MaxMemory:     1 << 30, // 1 GiB
		MaxCPUTime:    time.Minute,
		MaxStackDepth: 1 << 16,
		AllowNet:      true,
		AllowEnv:      true,
		AllowThreads:  true,
		FS:            FSAccess{Mode: FSReadWrite, Dir: string(os.PathSeparator)},
		NetRules:      []NetRule{{Host: "*"}},
	}
}

// Restrictive returns a policy that denies every capability and keeps
// limits tight, intended for untrusted code.
func Restrictive() *Policy {
	return &Policy{
		MaxMemory:     16 << 20, // 16 MiB
		MaxCPUTime:    time.Second,
		MaxStackDepth: 256,
	}
}
