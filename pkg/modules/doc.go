// Package modules holds the command modules served under /api/commands.
//
// Each subpackage defines a closed set of typed command names, decodes
// payloads into per-command input structs and returns command.Result values.
// Store-backed modules (billing, crm, support) read and write through
// storage.Store; the sandbox package seeds the records their self-test
// fixtures refer to.
package modules

import (
	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/modules/billing"
	"github.com/quantumnode/gateway/pkg/modules/crm"
	"github.com/quantumnode/gateway/pkg/modules/support"
	"github.com/quantumnode/gateway/pkg/modules/whm"
	"github.com/quantumnode/gateway/pkg/storage"
)

// Registry builds the command registry with every module bound to store.
func Registry(store *storage.Store) *command.Registry {
	return command.NewRegistry(
		whm.New(),
		billing.New(store),
		crm.New(store),
		support.New(store),
	)
}
