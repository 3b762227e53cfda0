// varpersist inspects and edits the key-value storage that persisted values
// live in. It opens the same backend the process-wide default adapter would
// (see internal/config) unless flags say otherwise.
//
// Values are the raw JSON text the engine stores. set refuses anything that
// is not valid JSON, since a persisted value would fail to load it.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ztimson/var-perisist/internal/backend"
	"github.com/ztimson/var-perisist/internal/config"
	"github.com/ztimson/var-perisist/pkg/storage"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errNotFound = errors.New("key not found")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	backend    string
	dir        string
	logLevel   string
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options

	flagSet := pflag.NewFlagSet("varpersist", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "YAML config file (default: $"+config.ConfigEnv+")")
	flagSet.StringVar(&opts.backend, "backend", "", "storage backend: memory, file, sqlite, bolt")
	flagSet.StringVar(&opts.dir, "dir", "", "directory holding the backend's data file")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return exitUsage
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		return exitf(stderr, exitUsage, "%v", err)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cmd, ok := commands[rest[0]]
	if !ok {
		return exitf(stderr, exitUsage, "unknown command %q", rest[0])
	}
	if len(rest)-1 != cmd.args {
		return exitf(stderr, exitUsage, "usage: varpersist %s", cmd.usage)
	}

	store, closer, err := backend.Open(cfg.Storage, logger)
	if err != nil {
		return exitf(stderr, exitError, "%v", err)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("close storage", "error", err)
		}
	}()

	logger.Debug("command", "name", rest[0], "backend", cfg.Storage.Backend, "path", cfg.Storage.Path())
	if err := cmd.run(store, rest[1:], stdout); err != nil {
		code := exitError
		if errors.Is(err, errUsage) {
			code = exitUsage
		}
		return exitf(stderr, code, "%s: %v", rest[0], err)
	}
	return exitOK
}

func resolveConfig(opts options) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if opts.backend != "" {
		cfg.Storage.Backend = config.Backend(strings.ToLower(opts.backend))
	}
	if opts.dir != "" {
		cfg.Storage.Dir = opts.dir
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

var errUsage = errors.New("invalid argument")

type command struct {
	usage string
	args  int
	run   func(store storage.Storage, args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"get": {
		usage: "get KEY",
		args:  1,
		run: func(store storage.Storage, args []string, stdout io.Writer) error {
			value, ok, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%q: %w", args[0], errNotFound)
			}
			_, err = fmt.Fprintln(stdout, value)
			return err
		},
	},
	"set": {
		usage: "set KEY JSON",
		args:  2,
		run: func(store storage.Storage, args []string, _ io.Writer) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("%w: value for %q is not valid JSON", errUsage, args[0])
			}
			return store.Set(args[0], args[1])
		},
	},
	"rm": {
		usage: "rm KEY",
		args:  1,
		run: func(store storage.Storage, args []string, _ io.Writer) error {
			return store.Remove(args[0])
		},
	},
	"ls": {
		usage: "ls",
		run: func(store storage.Storage, _ []string, stdout io.Writer) error {
			keys, err := store.Keys()
			if err != nil {
				return err
			}
			for _, key := range keys {
				if _, err := fmt.Fprintln(stdout, key); err != nil {
					return err
				}
			}
			return nil
		},
	},
	"len": {
		usage: "len",
		run: func(store storage.Storage, _ []string, stdout io.Writer) error {
			n, err := store.Len()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(stdout, strconv.Itoa(n))
			return err
		},
	},
	"clear": {
		usage: "clear",
		run: func(store storage.Storage, _ []string, _ io.Writer) error {
			return storage.Clear(store)
		},
	},
}

func exitf(stderr io.Writer, code int, format string, args ...any) int {
	fmt.Fprintf(stderr, "varpersist: "+format+"\n", args...)
	return code
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `varpersist reads and writes the storage behind persisted values.

Usage:
  varpersist [flags] <command> [args]

Commands:
  get KEY        print the stored JSON text for KEY
  set KEY JSON   store JSON text under KEY
  rm KEY         remove KEY
  ls             list stored keys
  len            print the number of stored keys
  clear          remove every stored key

Flags:
%s`, flagSet.FlagUsages())
}
