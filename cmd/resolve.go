package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drilonhametaj25/client-sniper/internal/business"
)

var (
	resolveName    string
	resolveCity    string
	resolveWebsite string
	resolvePhone   string
	resolveAddress string
	resolveSource  string
	resolveScore   int
	resolveIssues  []string
	resolveRoles   []string
	resolveFormat  string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a single observation into an entity",
	Long: `Matches one business observation against the store and either merges it
into the best matching entity or creates a new one.

Examples:
  client-sniper resolve --name "Pizzeria Da Mario" --city Roma --website pizzeriamario.it
  client-sniper resolve --name "Bar Roma" --city Milano --source directory --score 65 --format yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		obs := observationFromFlags(cmd)
		if err := obs.Validate(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := business.NewResolver(st, resolverOptions()).Resolve(ctx, obs)
		if err != nil {
			return err
		}
		zap.L().Debug("resolve complete", zap.String("entity_id", res.EntityID))
		return writeOutput(cmd.OutOrStdout(), resolveFormat, res)
	},
}

// observationFromFlags builds an observation from the resolve flags. The
// score is only set when --score was given.
func observationFromFlags(cmd *cobra.Command) business.Observation {
	obs := business.Observation{
		BusinessName: resolveName,
		City:         resolveCity,
		WebsiteURL:   resolveWebsite,
		Phone:        resolvePhone,
		Address:      resolveAddress,
		SourceID:     resolveSource,
		Issues:       resolveIssues,
		NeededRoles:  resolveRoles,
	}
	if cmd.Flags().Changed("score") {
		score := resolveScore
		obs.Score = &score
	}
	return obs
}

func init() {
	resolveCmd.Flags().StringVar(&resolveName, "name", "", "business name (required)")
	resolveCmd.Flags().StringVar(&resolveCity, "city", "", "city (required)")
	resolveCmd.Flags().StringVar(&resolveWebsite, "website", "", "website URL")
	resolveCmd.Flags().StringVar(&resolvePhone, "phone", "", "phone number")
	resolveCmd.Flags().StringVar(&resolveAddress, "address", "", "street address")
	resolveCmd.Flags().StringVar(&resolveSource, "source", "cli", "source identifier")
	resolveCmd.Flags().IntVar(&resolveScore, "score", 0, "lead score 0-100")
	resolveCmd.Flags().StringSliceVar(&resolveIssues, "issue", nil, "detected issue (repeatable)")
	resolveCmd.Flags().StringSliceVar(&resolveRoles, "role", nil, "needed role (repeatable)")
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "json", "output format: json or yaml")
	_ = resolveCmd.MarkFlagRequired("name")
	_ = resolveCmd.MarkFlagRequired("city")
	rootCmd.AddCommand(resolveCmd)
}
