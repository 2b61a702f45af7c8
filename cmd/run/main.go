package main

import (
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/enclavevm/enclave/engine"
	"github.com/enclavevm/enclave/policy"
	"github.com/enclavevm/enclave/wasi"
)

// entryName is the name the loaded bytecode is registered under.
const entryName = "main"

func main() {
	var (
		moduleFile  = flag.String("module", "", "Path to bytecode file")
		funcName    = flag.String("func", entryName, "Function to call")
		argsStr     = flag.String("args", "", "Arguments (type:value, comma-separated, e.g. i32:40,i64:7)")
		envVars     = flag.String("env", "", "Environment variables (KEY=VAL,KEY2=VAL2)")
		cliArgs     = flag.String("argv", "", "Program arguments (comma-separated)")
		preopens    = flag.String("preopens", "", "Preopened directories (comma-separated paths)")
		stdinStr    = flag.String("stdin", "", "Stdin data")
		policyFile  = flag.String("policy", "", "Path to YAML policy file (default: restrictive)")
		memSpec     = flag.String("mem", "1", "Linear memory pages, min or min:max")
		list        = flag.Bool("list", false, "List registered functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		engine.SetLogger(logger)
		wasi.SetLogger(logger)
	}

	minPages, maxPages, err := parseMemSpec(*memSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *moduleFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -module <file> [-func name] [-args type:value,...] [-policy file.yaml]")
		fmt.Fprintln(os.Stderr, "       run -module <file> -list")
		fmt.Fprintln(os.Stderr, "       run -module <file> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*moduleFile, *policyFile, minPages, maxPages); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	err = run(runOptions{
		moduleFile: *moduleFile,
		funcName:   *funcName,
		args:       *argsStr,
		env:        *envVars,
		argv:       *cliArgs,
		preopens:   *preopens,
		stdin:      *stdinStr,
		policyFile: *policyFile,
		memMin:     minPages,
		memMax:     maxPages,
		listOnly:   *list,
	})
	if err != nil {
		var exit *wasi.ExitError
		if stderrors.As(err, &exit) {
			os.Exit(int(exit.Code))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	moduleFile string
	funcName   string
	args       string
	env        string
	argv       string
	preopens   string
	stdin      string
	policyFile string
	memMin     uint32
	memMax     uint32
	listOnly   bool
}

// parseMemSpec parses "min" or "min:max" page counts.
func parseMemSpec(s string) (minPages, maxPages uint32, err error) {
	minStr, maxStr, hasMax := strings.Cut(s, ":")
	minVal, err := strconv.ParseUint(minStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parse -mem %q: %w", s, err)
	}
	if !hasMax {
		return uint32(minVal), 0, nil
	}
	maxVal, err := strconv.ParseUint(maxStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parse -mem %q: %w", s, err)
	}
	return uint32(minVal), uint32(maxVal), nil
}

func run(opts runOptions) error {
	pol, err := loadPolicy(opts.policyFile)
	if err != nil {
		return err
	}

	eng := engine.New()
	defer eng.Close()

	mod, err := eng.LoadModule(opts.moduleFile)
	if err != nil {
		return err
	}

	inst, err := mod.Instantiate(
		engine.WithPolicy(pol),
		engine.WithMemory(opts.memMin, opts.memMax),
		engine.WithCPULimit(),
	)
	if err != nil {
		return err
	}
	defer inst.Close()

	ctx := buildContext(opts.env, opts.argv, opts.preopens, opts.stdin)
	if err := wasi.NewHost(ctx, pol).Register(inst); err != nil {
		return err
	}

	args, err := parseArgs(opts.args)
	if err != nil {
		return err
	}
	params := make([]engine.ValueType, len(args))
	for i, a := range args {
		params[i] = a.Type()
	}
	if err := inst.RegisterWasmFunction(entryName, params, nil, mod.Bytes()); err != nil {
		return err
	}

	if opts.listOnly {
		printFunctions(inst)
		return nil
	}

	results, err := timedCall(inst, pol, opts.funcName, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", opts.funcName, err)
	}
	for _, r := range results {
		fmt.Println(r)
	}
	return nil
}

func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Restrictive(), nil
	}
	return policy.LoadFile(path)
}

func buildContext(envStr, argvStr, preopensStr, stdinStr string) *wasi.Context {
	ctx := wasi.NewContext()
	if envStr != "" {
		env := make(map[string]string)
		for _, kv := range strings.Split(envStr, ",") {
			if k, v, ok := strings.Cut(kv, "="); ok {
				env[k] = v
			}
		}
		ctx.WithEnv(env)
	}
	if argvStr != "" {
		ctx.WithArgs(strings.Split(argvStr, ","))
	}
	if preopensStr != "" {
		var pre []wasi.Preopen
		for _, path := range strings.Split(preopensStr, ",") {
			pre = append(pre, wasi.Preopen{Path: path, Rights: wasi.RightsRead})
		}
		ctx.WithPreopens(pre...)
	}
	if stdinStr != "" {
		ctx.WithStdin(strings.NewReader(stdinStr))
	}
	return ctx
}

// parseArgs converts a "type:value,..." list into tagged values. A bare
// number is taken as i32.
func parseArgs(s string) ([]engine.Value, error) {
	if s == "" {
		return nil, nil
	}
	var out []engine.Value
	for _, entry := range strings.Split(s, ",") {
		typ, lit, ok := strings.Cut(entry, ":")
		if !ok {
			typ, lit = "i32", entry
		}
		v, err := parseValue(typ, lit)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseValue(typ, lit string) (engine.Value, error) {
	switch typ {
	case "i32":
		v, err := strconv.ParseInt(lit, 10, 32)
		if err != nil {
			return engine.Value{}, fmt.Errorf("parse %q as i32: %w", lit, err)
		}
		return engine.NewI32(int32(v)), nil
	case "i64":
		v, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return engine.Value{}, fmt.Errorf("parse %q as i64: %w", lit, err)
		}
		return engine.NewI64(v), nil
	case "f32":
		v, err := strconv.ParseFloat(lit, 32)
		if err != nil {
			return engine.Value{}, fmt.Errorf("parse %q as f32: %w", lit, err)
		}
		return engine.NewF32(float32(v)), nil
	case "f64":
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return engine.Value{}, fmt.Errorf("parse %q as f64: %w", lit, err)
		}
		return engine.NewF64(v), nil
	default:
		return engine.Value{}, fmt.Errorf("unknown value type %q", typ)
	}
}

func printFunctions(inst *engine.Instance) {
	names := inst.Functions()
	fmt.Printf("Registered functions (%d):\n", len(names))
	for _, name := range sortedNames(names) {
		params, results, err := inst.Signature(name)
		if err != nil {
			continue
		}
		fmt.Printf("  %s\n", formatSignature(name, params, results))
	}
}

func sortedNames(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.Strings(out)
	return out
}

func formatSignature(name string, params, results []engine.ValueType) string {
	ps := make([]string, len(params))
	for i, p := range params {
		ps[i] = p.String()
	}
	sig := name + "(" + strings.Join(ps, ", ") + ")"
	if len(results) > 0 {
		rs := make([]string, len(results))
		for i, r := range results {
			rs[i] = r.String()
		}
		sig += " -> " + strings.Join(rs, ", ")
	}
	return sig
}

// timedCall wraps Call with the advisory CPU check so the budget is
// enforced even for host functions, which run outside the interpreter's
// in-loop deadline.
func timedCall(inst *engine.Instance, pol *policy.Policy, name string, args ...engine.Value) ([]engine.Value, error) {
	start := time.Now()
	results, err := inst.Call(name, args...)
	if err != nil {
		return nil, err
	}
	if err := pol.CheckCPUTime(time.Since(start)); err != nil {
		return nil, err
	}
	return results, nil
}
