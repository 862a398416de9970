// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks structural constraints declared via `validate` tags
// plus a few cross-field rules, and returns a readable aggregate error.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %v", msgs)
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Telegram is optional but must be configured as a pair.
	if (cfg.Telegram.BotToken == "") != (cfg.Telegram.ChatID == "") {
		return errors.New("invalid configuration: telegram.bot_token and telegram.chat_id must be set together")
	}

	return nil
}
