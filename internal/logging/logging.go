// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Package logging builds the zap loggers shared by every hwi package.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel selects the log level: debug, info, warn or error.
const EnvLevel = "HWI_LOG_LEVEL"

var (
	rootOnce sync.Once
	root     *zap.Logger
)

// Named returns a sugared logger for the given package name.
func Named(name string) *zap.SugaredLogger {
	rootOnce.Do(initLogger)
	return root.Named(name).Sugar()
}

func initLogger() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level = zap.NewAtomicLevelAt(parseLevel(getLogLevel()))

	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	root = logger
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func getLogLevel() string {
	level := os.Getenv(EnvLevel)
	if level == "" {
		level = "info"
	}
	return strings.ToLower(level)
}
