package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vbonduro/diamondinv/internal/views"
)

type SummaryOptions struct {
	*RootOptions
	KapaanNos []string
	PersonID  string
	From      string
	To        string
	Query     string
	MinWeight float64
	MaxWeight float64
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SummaryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the kapaan table with receive totals",
		Long: `Print one line per kapaan with its person, the number of receives recorded
against it and their summed pieces and weight.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.KapaanNos, "kapaan-no", nil, "only these kapaan numbers (repeatable)")
	cmd.Flags().StringVar(&opts.PersonID, "person", "", "only kapaans handled by this person id")
	cmd.Flags().StringVar(&opts.From, "from", "", "earliest date, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.To, "to", "", "latest date, YYYY-MM-DD")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "kapaan number substring")
	cmd.Flags().Float64Var(&opts.MinWeight, "min-weight", 0, "minimum kapaan weight, inclusive")
	cmd.Flags().Float64Var(&opts.MaxWeight, "max-weight", 0, "maximum kapaan weight, inclusive")

	return cmd
}

func runSummary(cmd *cobra.Command, opts *SummaryOptions) error {
	rt := openRuntime(cmd.Context(), opts.cfg, opts.logger)
	defer rt.Close()

	filter := views.Filter{
		KapaanNos: opts.KapaanNos,
		PersonID:  opts.PersonID,
		DateFrom:  opts.From,
		DateTo:    opts.To,
		Query:     opts.Query,
	}
	if cmd.Flags().Changed("min-weight") {
		filter.MinWeight = &opts.MinWeight
	}
	if cmd.Flags().Changed("max-weight") {
		filter.MaxWeight = &opts.MaxWeight
	}

	snap := rt.service.State()
	rows := rt.service.ListKapaans(filter)

	out := cmd.OutOrStdout()
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s %d  %s %d  %s %d\n",
		bold("persons"), len(snap.Persons),
		bold("kapaans"), len(snap.Kapaans),
		bold("receives"), len(snap.Receives))

	if len(rows) == 0 {
		fmt.Fprintln(out, "no kapaans")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KAPAAN NO\tDATE\tPERSON\tPCS\tWEIGHT\tRECEIVES\tRECV PCS\tRECV WEIGHT")
	for _, row := range rows {
		totals := views.Totals(snap.Receives, row.ID)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%d\t%d\t%.2f\n",
			row.KapaanNo, row.Date, personCell(row.PersonName),
			row.Pcs, row.Weight, totals.Count, totals.Pcs, totals.Weight)
	}
	return w.Flush()
}

// personCell highlights kapaans whose person no longer resolves.
func personCell(name string) string {
	if name == views.UnknownPerson {
		return color.New(color.FgRed).Sprint(name)
	}
	return name
}
