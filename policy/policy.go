package policy

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/enclavevm/enclave/errors"
)

// FSMode is the filesystem capability variant. The switch sites over it are
// exhaustive, so adding a mode is a compile-visible change, not a silently
// ignored case.
type FSMode int

const (
	FSNone FSMode = iota
	FSReadOnly
	FSReadWrite
)

func (m FSMode) String() string {
	switch m {
	case FSNone:
		return "none"
	case FSReadOnly:
		return "read-only"
	case FSReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("FSMode(%d)", int(m))
	}
}

// FSAccess scopes filesystem capability to one directory subtree.
type FSAccess struct {
	Mode FSMode
	Dir  string
}

// NetRule permits connections to hosts matching Host (exact name, "*", or a
// "*.suffix" wildcard) on Port, where 0 permits any port. Rules are
// consulted only when the net capability is granted at all.
type NetRule struct {
	Host string
	Port uint16
}

// Policy is a capability rule set. Every boolean or variant capability
// defaults to its most restrictive value; every budget defaults to zero.
type Policy struct {
	MaxMemory     uint64
	MaxCPUTime    time.Duration
	MaxStackDepth int
	AllowNet      bool
	AllowEnv      bool
	AllowThreads  bool
	FS            FSAccess
	NetRules      []NetRule
}

// CheckNet fails unless the net capability is granted and some rule matches
// both the host and the port.
func (p *Policy) CheckNet(host string, port uint16) error {
	if !p.AllowNet {
		return errors.PermissionDenied("net", "network access is not granted")
	}
	for _, rule := range p.NetRules {
		if matchHost(rule.Host, host) && (rule.Port == 0 || rule.Port == port) {
			return nil
		}
	}
	return errors.PermissionDenied("net",
		fmt.Sprintf("no rule permits %s:%d", host, port))
}

// CheckFSRead fails unless the filesystem capability permits reading and
// path falls under the scoped directory.
func (p *Policy) CheckFSRead(path string) error {
	switch p.FS.Mode {
	case FSNone:
		return errors.PermissionDenied("fs", "filesystem access is not granted")
	case FSReadOnly, FSReadWrite:
		return p.checkScope(path)
	default:
		panic("unreachable")
	}
}

// CheckFSWrite fails unless the filesystem capability permits writing and
// path falls under the scoped directory.
func (p *Policy) CheckFSWrite(path string) error {
	switch p.FS.Mode {
	case FSNone:
		return errors.PermissionDenied("fs", "filesystem access is not granted")
	case FSReadOnly:
		return errors.PermissionDenied("fs", "filesystem access is read-only")
	case FSReadWrite:
		return p.checkScope(path)
	default:
		panic("unreachable")
	}
}

func (p *Policy) checkScope(path string) error {
	if underDir(p.FS.Dir, path) {
		return nil
	}
	return errors.PermissionDenied("fs",
		fmt.Sprintf("%s is outside the scoped directory %s", path, p.FS.Dir))
}

// CheckEnv fails unless environment access is granted.
func (p *Policy) CheckEnv() error {
	if !p.AllowEnv {
		return errors.PermissionDenied("env", "environment access is not granted")
	}
	return nil
}

// CheckThreads fails unless the threads capability is granted. The flag has
// no execution semantics in this engine; it exists so embedders can carry
// the grant through configuration.
func (p *Policy) CheckThreads() error {
	if !p.AllowThreads {
		return errors.PermissionDenied("threads", "thread spawning is not granted")
	}
	return nil
}

// CheckMemory fails when size exceeds the memory ceiling.
func (p *Policy) CheckMemory(size uint64) error {
	if size > p.MaxMemory {
		return errors.New(errors.PhasePolicy, errors.KindMemoryLimit).
			Detail("%d bytes exceeds the %d byte ceiling", size, p.MaxMemory).
			Build()
	}
	return nil
}

// CheckCPUTime fails when elapsed exceeds the CPU budget. The interpreter
// does not call this itself unless in-loop enforcement is armed; the
// expected pattern is for the caller to measure elapsed time around a call:
//
//	start := time.Now()
//	results, err := inst.Call("work")
//	if err == nil {
//	    err = p.CheckCPUTime(time.Since(start))
//	}
func (p *Policy) CheckCPUTime(elapsed time.Duration) error {
	if elapsed > p.MaxCPUTime {
		return errors.New(errors.PhasePolicy, errors.KindCPUTimeLimit).
			Detail("%v exceeds the %v budget", elapsed, p.MaxCPUTime).
			Build()
	}
	return nil
}

// underDir reports whether path falls under dir after cleaning, using a
// strict path-prefix test on component boundaries.
func underDir(dir, path string) bool {
	if dir == "" {
		return false
	}
	dir = filepath.Clean(dir)
	path = filepath.Clean(path)
	if dir == path {
		return true
	}
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

func matchHost(pattern, host string) bool {
	if pattern == "*" {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(host, "."+suffix) || host == suffix
	}
	return pattern == host
}
