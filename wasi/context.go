package wasi

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// Rights is the bitset of operations granted on a preopened directory.
type Rights uint64

const (
	RightsRead Rights = 1 << iota
	RightsWrite
)

// Preopen is a directory handle pre-granted to sandboxed code before
// execution begins. Preopens are numbered sequentially starting at
// descriptor 3; 0, 1 and 2 are reserved for stdio.
type Preopen struct {
	Path   string
	Rights Rights
}

// firstPreopenFD is the descriptor assigned to the first preopen.
const firstPreopenFD = 3

// Context configures one instance's view of the host: program arguments,
// environment, preopened directories, and the three standard streams. Use
// the builder methods to set up. A Context is destroyed with the Instance
// it serves.
type Context struct {
	args     []string
	env      map[string]string
	preopens []Preopen
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

// NewContext creates a Context with no arguments, an empty environment, no
// preopens, and the process standard streams.
func NewContext() *Context {
	return &Context{
		env:    make(map[string]string),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// WithArgs sets the program arguments.
func (c *Context) WithArgs(args []string) *Context {
	c.args = args
	return c
}

// WithEnv sets the environment variables.
func (c *Context) WithEnv(env map[string]string) *Context {
	if env == nil {
		env = make(map[string]string)
	}
	c.env = env
	return c
}

// WithPreopens sets the preopened directories.
func (c *Context) WithPreopens(preopens ...Preopen) *Context {
	c.preopens = preopens
	return c
}

// WithStdin sets the stream behind descriptor 0.
func (c *Context) WithStdin(r io.Reader) *Context {
	c.stdin = r
	return c
}

// WithStdout sets the stream behind descriptor 1.
func (c *Context) WithStdout(w io.Writer) *Context {
	c.stdout = w
	return c
}

// WithStderr sets the stream behind descriptor 2.
func (c *Context) WithStderr(w io.Writer) *Context {
	c.stderr = w
	return c
}

// Args returns the program arguments.
func (c *Context) Args() []string { return c.args }

// Env returns the environment variables.
func (c *Context) Env() map[string]string { return c.env }

// Preopens returns the preopened directories.
func (c *Context) Preopens() []Preopen { return c.preopens }

// environList returns the environment as "KEY=VALUE" strings in a
// deterministic order.
func (c *Context) environList() []string {
	keys := make([]string, 0, len(c.env))
	for k := range c.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + c.env[k]
	}
	return out
}

// ExitError is the hard termination signal raised by proc_exit. It carries
// the guest's exit code out of Instance.Call.
type ExitError struct {
	Code int32
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("guest requested exit with code %d", e.Code)
}
