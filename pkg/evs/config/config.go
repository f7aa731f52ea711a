// Package config loads the engine's Configuration through koanf's layered
// provider model: built-in defaults, an optional YAML file, then
// environment variables, each layer overriding the previous one.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

const envPrefix = "EVS_"

// Load builds a Configuration from defaults, optionally overlaid by the
// YAML file at path (skipped if path is empty; an unreadable file is
// returned as an error) and then by EVS_-prefixed environment variables.
func Load(path string) (types.Configuration, error) {
	k := koanf.New(".")
	cfg := types.DefaultConfiguration()

	if err := k.Load(confmap.Provider(defaultsMap(cfg), "."), nil); err != nil {
		return cfg, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, err
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMap), nil); err != nil {
		return cfg, err
	}

	out := cfg
	out.SendWindow = uint32(k.Int64("send_window"))
	out.MaxOutputSize = k.Int("max_output_size")
	out.InactiveTimeout = k.Duration("inactive_timeout")
	out.InactiveCheckPeriod = k.Duration("inactive_check_period")
	out.ConsensusTimeout = k.Duration("consensus_timeout")
	out.ResendPeriod = k.Duration("resend_period")
	out.SendJoinPeriod = k.Duration("send_join_period")
	out.PreviousViewTTL = k.Duration("previous_view_ttl")
	out.MetricsAddr = k.String("metrics_addr")
	out.LogLevel = k.String("log_level")
	return out, nil
}

// envKeyMap turns EVS_SEND_WINDOW into send_window, matching the dotted
// keys used by defaultsMap and the YAML schema.
func envKeyMap(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ToLower(s)
}

func defaultsMap(cfg types.Configuration) map[string]interface{} {
	return map[string]interface{}{
		"send_window":            cfg.SendWindow,
		"max_output_size":        cfg.MaxOutputSize,
		"inactive_timeout":       cfg.InactiveTimeout.String(),
		"inactive_check_period":  cfg.InactiveCheckPeriod.String(),
		"consensus_timeout":      cfg.ConsensusTimeout.String(),
		"resend_period":          cfg.ResendPeriod.String(),
		"send_join_period":       cfg.SendJoinPeriod.String(),
		"previous_view_ttl":      cfg.PreviousViewTTL.String(),
		"metrics_addr":           cfg.MetricsAddr,
		"log_level":              cfg.LogLevel,
	}
}
