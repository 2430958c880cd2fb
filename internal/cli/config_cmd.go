// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration commands.
//
// Usage:
//
//	arkiv config show                     Show current configuration
//	arkiv config get api.base_url         Print one value
//	arkiv config set api.base_url URL     Change one value
//	arkiv config reset [--yes]            Reset to defaults
//	arkiv config path                     Show config file location
//	arkiv config keys                     List settable keys

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/arkiv-tui/internal/config"
)

var configMaskedStyle = DimStyle

// secretConfigKeys are masked in "config show".
var secretConfigKeys = map[string]bool{
	"identity.anon_key": true,
}

func maskIfSecret(key string, value any) string {
	s := fmt.Sprint(value)
	if secretConfigKeys[key] && s != "" {
		if len(s) <= 8 {
			return "****"
		}
		return s[:4] + "..." + s[len(s)-4:]
	}
	return s
}

// HandleConfig dispatches the config subcommands. None of them needs a
// session.
func HandleConfig(ctx context.Context, r *Runtime, args Args) error {
	p := NewArgParser(args.Raw, "yes", "y")

	switch strings.ToLower(p.Subcommand()) {
	case "", "show", "list":
		return configShow(r)
	case "get":
		return configGet(r, p)
	case "set":
		return configSet(r, p)
	case "reset":
		return configReset(r, p)
	case "path":
		return r.emit("config path", map[string]string{"path": r.ConfigPath}, func(w io.Writer) {
			fmt.Fprintln(w, r.ConfigPath)
		})
	case "keys":
		return r.emit("config keys", config.AllKeys(), func(w io.Writer) {
			for _, k := range config.AllKeys() {
				fmt.Fprintln(w, k)
			}
		})
	default:
		return &UsageError{
			Message: fmt.Sprintf("unknown config command %q", p.Subcommand()),
			Hint:    "Valid commands: show, get, set, reset, path, keys",
		}
	}
}

func configShow(r *Runtime) error {
	cfg := r.Config
	values := make(map[string]string)
	for _, k := range config.AllKeys() {
		v, err := cfg.Get(k)
		if err != nil {
			continue
		}
		values[k] = maskIfSecret(k, v)
	}

	return r.emit("config show", map[string]any{"path": r.ConfigPath, "values": values}, func(w io.Writer) {
		fmt.Fprintln(w, TitleStyle.Render("Arkiv Configuration")+" "+DimStyle.Render("v"+values["version"]))
		fmt.Fprintln(w, RenderSeparator(41))
		section := ""
		for _, k := range config.AllKeys() {
			sec, name, found := strings.Cut(k, ".")
			if !found {
				continue
			}
			if sec != section {
				fmt.Fprintln(w)
				fmt.Fprintln(w, SectionStyle.Render("["+sec+"]"))
				section = sec
			}
			v := values[k]
			if secretConfigKeys[k] {
				v = configMaskedStyle.Render(v)
			}
			fmt.Fprintln(w, "  "+RenderField(name+":", v))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, DimStyle.Render("Config file: "+r.ConfigPath))
	})
}

// lookupKey rejects keys that are not settable.
func lookupKey(key string) error {
	for _, k := range config.AllKeys() {
		if k == key {
			return nil
		}
	}
	return &NotFoundError{Resource: "config key", ID: key}
}

func configGet(r *Runtime, p *ArgParser) error {
	key := strings.ToLower(p.Positional(1))
	if key == "" {
		return ErrMissingArgument("KEY", "arkiv config get KEY")
	}
	if err := lookupKey(key); err != nil {
		return err
	}
	v, err := r.Config.Get(key)
	if err != nil {
		return &ConfigError{Err: err}
	}
	return r.emit("config get", map[string]any{"key": key, "value": v}, func(w io.Writer) {
		fmt.Fprintln(w, v)
	})
}

func configSet(r *Runtime, p *ArgParser) error {
	key := strings.ToLower(p.Positional(1))
	if key == "" || p.PositionalCount() < 3 {
		return ErrMissingArgument("KEY VALUE", "arkiv config set KEY VALUE")
	}
	if err := lookupKey(key); err != nil {
		return err
	}
	value := JoinPositionalArgs(p, 2)

	cfg := r.Config.Clone()
	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Message: err.Error(), Hint: "Run 'arkiv config keys' to list settable keys."}
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	if err := r.saveConfig(cfg); err != nil {
		return err
	}
	return r.success("config set", fmt.Sprintf("Set %s = %s", key, maskIfSecret(key, value)),
		map[string]string{"key": key, "value": maskIfSecret(key, value)})
}

func configReset(r *Runtime, p *ArgParser) error {
	if err := r.Prompt.Confirm("config reset", "reset every setting to its default", r.confirmOpts(p)); err != nil {
		return err
	}
	if err := r.saveConfig(config.Default()); err != nil {
		return err
	}
	return r.success("config reset", "Configuration reset to defaults", map[string]string{"path": r.ConfigPath})
}

func (r *Runtime) saveConfig(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(r.ConfigPath), 0700); err != nil {
		return &ConfigError{Err: err}
	}
	if err := config.SaveTOML(cfg, r.ConfigPath); err != nil {
		return &ConfigError{Err: err}
	}
	r.Config = cfg
	return nil
}
