package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/drilonhametaj25/client-sniper/internal/business"
)

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a stored entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		e, err := business.NewResolver(st, resolverOptions()).Get(ctx, args[0])
		if err != nil {
			return err
		}
		if e == nil {
			return eris.Errorf("entity %s not found", args[0])
		}
		return writeOutput(cmd.OutOrStdout(), showFormat, e)
	},
}

func init() {
	showCmd.Flags().StringVar(&showFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(showCmd)
}
