package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/missions"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/pkg/envconf"
)

const defaultHistoryLimit = 20

// emit writes v as JSON when --json is set and calls text otherwise. JSON
// output carries amounts in minor units.
func (a *app) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()

	if a.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	}

	text(w)

	return nil
}

func formatBalance(b ledger.Balance) string {
	return fmt.Sprintf("%s LEAF, %s TREECOIN",
		ledger.FormatAmount(ledger.Leaf, b.Leaf),
		ledger.FormatAmount(ledger.TreeCoin, b.TreeCoin),
	)
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <user>",
		Short: "Create an account and grant the signup mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.svc.InitializeUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return a.emit(cmd, res, func(w io.Writer) {
				if res.Created {
					fmt.Fprintf(w, "created %s: %s\n", args[0], formatBalance(res.Balance))
					return
				}

				fmt.Fprintf(w, "%s already exists: %s\n", args[0], formatBalance(res.Balance))
			})
		},
	}
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user>",
		Short: "Show Leaf and TreeCoin balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.svc.GetBalance(args[0])
			if err != nil {
				return err
			}

			return a.emit(cmd, b, func(w io.Writer) {
				fmt.Fprintln(w, formatBalance(b))
			})
		},
	}
}

func parseCredit(currency, amount string) (ledger.Currency, int64, error) {
	c, err := ledger.ParseCurrency(currency)
	if err != nil {
		return "", 0, err
	}

	v, err := ledger.ParseAmount(c, amount)
	if err != nil {
		return "", 0, err
	}

	return c, v, nil
}

func printTx(w io.Writer, t ledger.Transaction) {
	fmt.Fprintf(w, "%s %s %s %s (%s)\n",
		t.Kind(), ledger.FormatAmount(t.Currency, t.Amount), t.Currency, t.Description, t.ID)
}

func (a *app) earnCmd() *cobra.Command {
	var description, missionRef string

	cmd := &cobra.Command{
		Use:   "earn <user> <currency> <amount>",
		Short: "Credit a user",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, amount, err := parseCredit(args[1], args[2])
			if err != nil {
				return err
			}

			t, err := a.svc.EarnCredits(cmd.Context(), args[0], c, amount, description, missionRef)
			if err != nil {
				return err
			}

			return a.emit(cmd, t, func(w io.Writer) { printTx(w, t) })
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "Manual credit", "transaction description")
	cmd.Flags().StringVar(&missionRef, "mission-ref", "", "free-form reference; catalog mission IDs are rejected")

	return cmd
}

func (a *app) spendCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "spend <user> <currency> <amount>",
		Short: "Debit a user if the balance covers it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, amount, err := parseCredit(args[1], args[2])
			if err != nil {
				return err
			}

			t, err := a.svc.SpendCredits(cmd.Context(), args[0], c, amount, description)
			if err != nil {
				return err
			}

			return a.emit(cmd, t, func(w io.Writer) { printTx(w, t) })
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "Manual debit", "transaction description")

	return cmd
}

func (a *app) convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <user> [leafs]",
		Short: "Convert Leafs to TreeCoins",
		Long:  "Convert Leafs to TreeCoins. Without an amount the largest convertible multiple of the ratio is used.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var amount *int64

			if len(args) == 2 {
				v, err := ledger.ParseAmount(ledger.Leaf, args[1])
				if err != nil {
					return err
				}

				amount = &v
			}

			res, err := a.svc.ConvertLeafsToTreeCoins(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}

			return a.emit(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "converted %s LEAF into %s TREECOIN\n",
					ledger.FormatAmount(ledger.Leaf, res.LeafsSpent),
					ledger.FormatAmount(ledger.TreeCoin, res.TreeCoinsEarned),
				)
			})
		},
	}
}

func printState(w io.Writer, st missions.State) {
	fmt.Fprintf(w, "%s %s %d/%d\n", st.Mission.ID, st.Status, st.Progress, st.Mission.Requirement.TargetCount)
}

func (a *app) progressCmd() *cobra.Command {
	var by int

	cmd := &cobra.Command{
		Use:   "progress <user> <mission>",
		Short: "Record progress towards a mission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.svc.ProgressMission(cmd.Context(), args[0], args[1], by)
			if err != nil {
				return err
			}

			return a.emit(cmd, st, func(w io.Writer) { printState(w, st) })
		},
	}

	cmd.Flags().IntVar(&by, "by", 1, "progress increment")

	return cmd
}

func (a *app) completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <user> <mission>",
		Short: "Complete an eligible mission and pay its rewards",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.svc.CompleteMission(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			return a.emit(cmd, c, func(w io.Writer) {
				printState(w, c.State)

				for _, t := range c.Rewards {
					printTx(w, t)
				}
			})
		},
	}
}

func (a *app) missionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "missions <user>",
		Short: "List every mission with the user's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := a.svc.Missions(args[0])
			if err != nil {
				return err
			}

			return a.emit(cmd, states, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPROGRESS\tREWARD")

				for _, st := range states {
					reward := ledger.FormatAmount(ledger.Leaf, st.Mission.LeafReward) + " LEAF"
					if st.Mission.TreeCoinReward > 0 {
						reward += " + " + ledger.FormatAmount(ledger.TreeCoin, st.Mission.TreeCoinReward) + " TREECOIN"
					}

					fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n", st.Mission.ID, st.Mission.Title, st.Status,
						st.Progress, st.Mission.Requirement.TargetCount, reward)
				}

				tw.Flush()
			})
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "Show transactions newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := a.svc.GetTransactions(args[0], limit)
			if err != nil {
				return err
			}

			txns := slices.Collect(seq)

			return a.emit(cmd, txns, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SEQ\tTIME\tKIND\tAMOUNT\tCURRENCY\tDESCRIPTION")

				for _, t := range txns {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", strconv.FormatInt(t.Seq, 10),
						t.Timestamp.Format("2006-01-02 15:04:05"), t.Kind(),
						ledger.FormatAmount(t.Currency, t.Amount), t.Currency, t.Description)
				}

				tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "maximum transactions to show, 0 for all")

	return cmd
}

func (a *app) ecoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eco <user>",
		Short: "Show the user's eco score and level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eco, err := a.svc.EcoProfile(args[0])
			if err != nil {
				return err
			}

			return a.emit(cmd, eco, func(w io.Writer) {
				fmt.Fprintf(w, "score %d/%d, level %d %s\n", eco.Score, eco.MaxScore, eco.Level.Number, eco.Level.Title)
			})
		},
	}
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <user>",
		Short: "Show balances, mission completion and eco level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := a.svc.Summary(args[0])
			if err != nil {
				return err
			}

			return a.emit(cmd, sum, func(w io.Writer) {
				fmt.Fprintf(w, "balance: %s\n", formatBalance(sum.Balance))
				fmt.Fprintf(w, "missions: %d/%d completed\n", sum.CompletedMissions, sum.TotalMissions)
				fmt.Fprintf(w, "eco: %d/%d %s\n", sum.Eco.Score, sum.Eco.MaxScore, sum.Eco.Level.Title)

				for _, t := range sum.Recent {
					printTx(w, t)
				}
			})
		},
	}
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute every balance from the transaction log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.store.Verify()
			if err != nil {
				return err
			}

			users := a.store.Users()

			return a.emit(cmd, map[string]int{"accounts": len(users)}, func(w io.Writer) {
				fmt.Fprintf(w, "ok: %d accounts consistent\n", len(users))
			})
		},
	}
}

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "env",
		Short:       "List the environment variables leafctl reads",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoStore: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			vars, err := envconf.Describe(&cliConfig{})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDEFAULT\tFIELD")

			for _, v := range vars {
				def := v.Default
				if v.Required {
					def = "(required)"
				}

				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Name, def, v.Field)
			}

			return tw.Flush()
		},
	}
}
