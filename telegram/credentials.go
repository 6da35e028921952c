// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"fmt"
)

type Secrets struct {
	BotToken string `json:"token"`

	// ChatID is the chat receiving notifications. When zero, the bot learns
	// chat ids from the users that message it.
	ChatID int64 `json:"chat_id"`
}

func (v *Secrets) Check() error {
	if len(v.BotToken) == 0 {
		return fmt.Errorf("bot token cannot be empty")
	}
	return nil
}

func (v *Secrets) Clone() *Secrets {
	return &Secrets{
		BotToken: v.BotToken,
		ChatID:   v.ChatID,
	}
}
