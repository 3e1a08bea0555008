// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	"github.com/LeeDigitalWorks/plsync/pkg/logger"
)

var (
	ConfigurationFileDirectory string
)

// LoadConfiguration merges configFileName from the configuration directory,
// the working directory, $HOME/.plsync or /etc/plsync into viper.
// Environment variables prefixed with PLSYNC_ override file values.
func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	if ConfigurationFileDirectory != "" {
		viper.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
	}
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.plsync")
	viper.AddConfigPath("/etc/plsync/")
	viper.SetEnvPrefix("plsync")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if required {
				logger.Fatal().Msgf("Config file not found: %s", configFileName)
			}
			logger.Debug().Msgf("Config file not found: %s", configFileName)
			return false
		}

		if required {
			logger.Fatal().Err(err).Msgf("Failed to load required config file: %s", configFileName)
		}
		logger.Warn().Err(err).Msgf("Ignoring unreadable config file: %s", configFileName)
		return false
	}
	logger.Debug().Msgf("Loaded config file: %s", viper.ConfigFileUsed())

	return true
}
