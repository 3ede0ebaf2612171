package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"todox/internal/app"
)

func newPermissionCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "permission",
		Short: "Request notification permission from the configured surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := app.RequestPermission(cmd.Context(), *cfgPath, app.Options{
				Stdout: cmd.OutOrStdout(),
				Stdin:  cmd.InOrStdin(),
			})
			if err != nil {
				return err
			}
			state := "denied"
			if res.Granted {
				state = "granted"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s: notifications %s\n", res.Surface, state)
			return nil
		},
	}
}
