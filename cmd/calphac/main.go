// Command calphac compiles calpha source files to LIR text and can run the
// result on the reference VM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/calpha-lang/calpha/internal/abi"
	"github.com/calpha-lang/calpha/internal/cli"
	"github.com/calpha-lang/calpha/internal/compiler"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	"github.com/calpha-lang/calpha/internal/term"
	"github.com/calpha-lang/calpha/internal/vm"
	"github.com/calpha-lang/calpha/internal/watch"
)

const (
	tool          = "calphac"
	defaultConfig = "calpha.json"
	debounce      = 100 * time.Millisecond
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	output     string
	configPath string
	abiFile    string
	color      string
	outputDir  string
	registers  int
	jobs       int
	maxSteps   int64
	run        bool
	watch      bool
	verbose    bool
	debug      bool
	version    bool
	json       bool
}

// run executes the command and returns the process exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(tool, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.output, "o", "", "write the program to `file` (- for stdout); one input only")
	fs.StringVar(&o.configPath, "config", defaultConfig, "configuration `file`")
	fs.StringVar(&o.abiFile, "abi", "", "syscall table `file` replacing the built-in one")
	fs.StringVar(&o.color, "color", cli.ColorAuto, "color diagnostics: auto, always or never")
	fs.StringVar(&o.outputDir, "out-dir", "", "write .lir files to `dir`")
	fs.IntVar(&o.registers, "registers", 0, "register pool size")
	fs.IntVar(&o.jobs, "jobs", 0, "units compiled concurrently")
	fs.Int64Var(&o.maxSteps, "max-steps", 0, "instruction limit for -run")
	fs.BoolVar(&o.run, "run", false, "run the program and exit with its status; one input only")
	fs.BoolVar(&o.watch, "watch", false, "rebuild when a source or imported file changes")
	fs.BoolVar(&o.verbose, "verbose", false, "enable verbose output")
	fs.BoolVar(&o.debug, "debug", false, "enable debug output")
	fs.BoolVar(&o.version, "version", false, "show version information")
	fs.BoolVar(&o.json, "json", false, "print version information as JSON")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] file.ca...\n\nFlags:\n", tool)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if o.version {
		if err := cli.PrintVersion(stdout, tool, o.json); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", tool, err)
			return 1
		}
		return 0
	}

	cfg, err := configure(fs, &o)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", tool, err)
		return 2
	}

	inputs := fs.Args()
	switch {
	case len(inputs) == 0:
		fmt.Fprintf(stderr, "%s: no input files\n", tool)
		fs.Usage()
		return 2
	case len(inputs) > 1 && (o.output != "" || o.run):
		fmt.Fprintf(stderr, "%s: -o and -run take a single input file\n", tool)
		return 2
	case o.output == "" && !o.run:
		owner := make(map[string]string, len(inputs))
		for _, in := range inputs {
			out := outputPath(cfg.OutputDir, in)
			if prev, ok := owner[out]; ok {
				fmt.Fprintf(stderr, "%s: %s and %s both write %s\n", tool, prev, in, out)
				return 2
			}
			owner[out] = in
		}
	}

	log := cli.NewLogger(stderr, cfg.Verbose, cfg.Debug)

	table := abi.Default()
	if cfg.ABIFile != "" {
		if table, err = abi.LoadFile(cfg.ABIFile); err != nil {
			log.Error("load ABI: %v", err)
			return 1
		}
	}

	errFile, _ := stderr.(*os.File)
	d := &driver{
		cfg:    cfg,
		opts:   o,
		log:    log,
		inputs: inputs,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		color:  term.ColorEnabled(cfg.Color, errFile),
		comp: compiler.New(compiler.Options{
			ABI:       table,
			Registers: cfg.Registers,
			Jobs:      cfg.Jobs,
			Logger:    log,
		}),
	}

	code := d.build(ctx)
	if !o.watch {
		return code
	}
	return d.watch(ctx)
}

// configure loads the configuration file and applies the flags that were
// set explicitly on top of it.
func configure(fs *flag.FlagSet, o *options) (*cli.Config, error) {
	cfg, err := cli.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "abi":
			cfg.ABIFile = o.abiFile
		case "color":
			cfg.Color = o.color
		case "out-dir":
			cfg.OutputDir = o.outputDir
		case "registers":
			cfg.Registers = o.registers
		case "jobs":
			cfg.Jobs = o.jobs
		case "max-steps":
			cfg.MaxSteps = o.maxSteps
		case "verbose":
			cfg.Verbose = o.verbose
		case "debug":
			cfg.Debug = o.debug
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type driver struct {
	cfg    *cli.Config
	opts   options
	log    *cli.Logger
	comp   *compiler.Compiler
	inputs []string
	color  bool

	stdin          io.Reader
	stdout, stderr io.Writer

	results []*compiler.Result
}

// build compiles every input once and returns the exit status.
func (d *driver) build(ctx context.Context) int {
	units := make([]compiler.Unit, 0, len(d.inputs))
	for _, in := range d.inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			d.log.Error("%v", err)
			return 1
		}
		units = append(units, compiler.Unit{
			Name:   filepath.Base(in),
			Source: string(data),
			FS:     os.DirFS(filepath.Dir(in)),
		})
	}

	start := time.Now()
	results, err := d.comp.CompileAll(ctx, units)
	if err != nil {
		d.log.Error("%v", err)
		return 1
	}
	d.results = results

	failed := false
	for i, res := range results {
		if len(res.Diagnostics) > 0 {
			f := &diagnostic.Formatter{Source: res.Source, Color: d.color}
			f.Format(d.stderr, res.Diagnostics)
		}
		if res.HasErrors() {
			failed = true
			continue
		}
		if err := d.emit(d.inputs[i], res); err != nil {
			d.log.Error("%v", err)
			failed = true
		}
	}
	d.log.Info("compiled %d file(s) in %s", len(units), time.Since(start).Round(time.Microsecond))
	if failed {
		return 1
	}

	if d.opts.run {
		return d.execute(ctx, results[0])
	}
	return 0
}

// emit writes the program text for one input.
func (d *driver) emit(input string, res *compiler.Result) error {
	text := res.Program.String()

	switch d.opts.output {
	case "-":
		_, err := io.WriteString(d.stdout, text)
		return err
	case "":
		if d.opts.run {
			return nil
		}
	default:
		d.log.Info("wrote %s", d.opts.output)
		return os.WriteFile(d.opts.output, []byte(text), 0o644)
	}

	if d.cfg.OutputDir != "" {
		if err := os.MkdirAll(d.cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	out := outputPath(d.cfg.OutputDir, input)
	if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	d.log.Info("wrote %s", out)
	return nil
}

// outputPath returns the .lir file written for input: next to it, or in
// dir when dir is set.
func outputPath(dir, input string) string {
	if dir == "" {
		dir = filepath.Dir(input)
	}
	base := filepath.Base(input)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".lir")
}

func (d *driver) execute(ctx context.Context, res *compiler.Result) int {
	code, err := vm.Exec(ctx, res.Program, vm.Options{
		MaxSteps: d.cfg.MaxSteps,
		Stdin:    d.stdin,
		Stdout:   d.stdout,
		Stderr:   d.stderr,
	})
	if err != nil {
		d.log.Error("%s: %v", res.Name, err)
		return 1
	}
	d.log.Info("%s exited with status %d", res.Name, code)
	return int(code & 0xff)
}

// watch rebuilds on every change to an input or a file it imports until
// ctx is cancelled.
func (d *driver) watch(ctx context.Context) int {
	w, err := watch.New()
	if err != nil {
		d.log.Error("watch: %v", err)
		return 1
	}
	defer w.Close()

	d.track(w)
	d.log.Warn("watching %d file(s)", len(w.Files()))

	err = w.Run(ctx, debounce, func(changed []string) {
		d.log.Info("changed: %s", strings.Join(changed, ", "))
		d.build(ctx)
		d.track(w)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		d.log.Error("watch: %v", err)
		return 1
	}
	return 0
}

// track adds the inputs and everything they imported to w.
func (d *driver) track(w *watch.Watcher) {
	for i, in := range d.inputs {
		if err := w.Add(in); err != nil {
			d.log.Warn("watch %s: %v", in, err)
		}
		if i >= len(d.results) || d.results[i] == nil {
			continue
		}
		for _, name := range d.results[i].Imports {
			p := filepath.Join(filepath.Dir(in), filepath.FromSlash(name))
			if err := w.Add(p); err != nil {
				d.log.Debug("watch %s: %v", p, err)
			}
		}
	}
}
