package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/modules"
	"github.com/quantumnode/gateway/pkg/storage"
)

// errSelfTestFailed makes the process exit non-zero after the report is printed.
type errSelfTestFailed struct {
	failed []string
}

func (e errSelfTestFailed) Error() string {
	return fmt.Sprintf("self-test failed for %v", e.failed)
}

func newSelfTestCmd() *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run every command module's fixtures offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := storage.NewMemory()
			defer store.Close()
			registry := modules.Registry(store)

			reports := map[string]command.Report{}
			if len(only) == 0 {
				reports = command.RunAll(cmd.Context(), registry)
			} else {
				for _, name := range only {
					m, ok := registry.Lookup(name)
					if !ok {
						return fmt.Errorf("unknown module %q, available: %v", name, registry.Names())
					}
					reports[name] = command.RunSuite(cmd.Context(), m)
				}
			}

			out, err := json.MarshalIndent(reports, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			var failed []string
			for name, r := range reports {
				if !r.OK {
					failed = append(failed, name)
				}
			}
			if len(failed) > 0 {
				sort.Strings(failed)
				return errSelfTestFailed{failed: failed}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&only, "module", "m", nil, "Limit to these modules")
	return cmd
}
