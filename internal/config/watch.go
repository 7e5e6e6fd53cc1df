package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Watch reloads the config file whenever it changes and hands each valid
// result to onChange. Invalid edits are logged and ignored. Only settings
// that can change at runtime, such as the log level, should be applied.
func Watch(v *viper.Viper, onChange func(*Config)) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("failed to parse changed config")
			return
		}
		if err := postProcess(&cfg); err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("failed to apply changed config")
			return
		}
		if err := Validate(&cfg); err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid config change")
			return
		}

		log.Info().Str("file", e.Name).Msg("config reloaded")
		onChange(&cfg)
	})
	v.WatchConfig()
}
