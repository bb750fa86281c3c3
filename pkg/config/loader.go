package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
)

// DebugEnv enables debug mode when set to a true value
const DebugEnv = "COMPOSITOR_DEBUG"

// Load builds the configuration: defaults, then the -config file, then the
// remaining flags, then the environment. getenv is usually os.Getenv.
func Load(name string, args []string, getenv func(string) string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "Path to YAML config file")
	port := fs.Int("port", 0, "Server port (default from config, 8080)")
	host := fs.String("host", "", "Server host (default from config, 0.0.0.0)")
	debug := fs.Bool("debug", false, "Keep staging directories and log in development mode")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		fileCfg, err := LoadFile(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *debug || envBool(getenv, DebugEnv) {
		cfg.Render.KeepStaging = true
		cfg.Log.Development = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envBool(getenv func(string) string, key string) bool {
	if getenv == nil {
		return false
	}
	v := getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// any other non-empty value counts as set
		return true
	}
	return b
}
