// Copyright (c) 2025 BVK Chaitanya

package gobs

import (
	"fmt"
)

// NewByTypename returns a zero value of the named datastore type. The db
// subcommands use it to decode arbitrary keys for display.
func NewByTypename(typename string) (any, error) {
	var v any
	switch typename {
	case "OrderRecord":
		v = new(OrderRecord)
	case "TelegramState":
		v = new(TelegramState)
	case "ServerState":
		v = new(ServerState)
	default:
		return nil, fmt.Errorf("unsupported type name %q", typename)
	}
	return v, nil
}
