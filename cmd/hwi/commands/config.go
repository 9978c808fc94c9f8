// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the CLI settings after flags, env and file are merged.
type Config struct {
	Device    string
	Path      string
	Network   string
	Timeout   time.Duration
	Simulate  bool
	Yes       bool
	Simulator SimulatorConfig
}

// SimulatorConfig configures --simulate.
type SimulatorConfig struct {
	// Seed is hex. The default is a fixed development seed.
	Seed    string
	Storage string
}

var defaultSimulatorSeed = sha256.Sum256([]byte("hwi-go development seed"))

// loadConfig reads configuration from file and env, then lets set flags win.
// Env var overrides use prefix HWI_.
func loadConfig(flags *pflag.FlagSet, file string) (Config, error) {
	v := viper.New()

	v.SetDefault("device", "")
	v.SetDefault("path", "")
	v.SetDefault("network", "mainnet")
	v.SetDefault("timeout", 20*time.Second)
	v.SetDefault("simulate", false)
	v.SetDefault("yes", false)
	v.SetDefault("simulator.seed", hex.EncodeToString(defaultSimulatorSeed[:]))
	v.SetDefault("simulator.storage", "")

	v.SetConfigType("toml")
	if file == "" {
		file = os.Getenv("HWI_CONFIG")
	}
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "hwi"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("HWI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, name := range []string{"device", "path", "network", "timeout", "simulate", "yes"} {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(name, f); err != nil {
				return Config{}, err
			}
		}
	}

	// A missing default file is fine, a missing explicit one is not.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

var networks = map[string]*chaincfg.Params{
	"mainnet": &chaincfg.MainNetParams,
	"testnet": &chaincfg.TestNet3Params,
	"signet":  &chaincfg.SigNetParams,
	"regtest": &chaincfg.RegressionNetParams,
}

func (c Config) network() (*chaincfg.Params, error) {
	params, ok := networks[strings.ToLower(c.Network)]
	if !ok {
		return nil, fmt.Errorf("unknown network %q (want mainnet, testnet, signet or regtest)", c.Network)
	}
	return params, nil
}

func (c Config) simulatorSeed() ([]byte, error) {
	seed, err := hex.DecodeString(c.Simulator.Seed)
	if err != nil {
		return nil, fmt.Errorf("simulator seed: %w", err)
	}
	return seed, nil
}
