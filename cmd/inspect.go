package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rpsledger/internal/hand"
	"rpsledger/internal/storage"
)

func commitCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Compute a hand commitment offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			handName, _ := cmd.Flags().GetString("hand")
			secret, _ := cmd.Flags().GetString("secret")
			account, _ := cmd.Flags().GetInt64("account")

			played, err := hand.ParseHand(handName)
			if err != nil {
				return err
			}
			if account == 0 {
				return fmt.Errorf("--account is required")
			}
			c, err := hand.Commit(played, []byte(secret), account, cfg.ArenaID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c)
			return nil
		},
	}
	cmd.Flags().StringP("hand", "H", "", "rock, paper or scissor")
	cmd.Flags().StringP("secret", "s", "", "secret to reveal the hand with later")
	cmd.Flags().Int64P("account", "a", 0, "Telegram ID of the committing account")
	cmd.MarkFlagRequired("hand")
	cmd.MarkFlagRequired("secret")
	return cmd
}

func balancesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "Print every account balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, v)
			if err != nil {
				return err
			}
			defer store.Close()

			accounts, err := store.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				pterm.Info.Println("No accounts yet")
				return nil
			}
			return renderAccounts(accounts)
		},
	}
}

func gameCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "game <id>",
		Short: "Print a game and its audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid game id %q", args[0])
			}

			store, err := openStore(cmd, v)
			if err != nil {
				return err
			}
			defer store.Close()

			g, err := store.GetGame(cmd.Context(), gameID)
			if err != nil {
				return err
			}
			if g == nil {
				return fmt.Errorf("game #%d not found", gameID)
			}
			events, err := store.ListEvents(cmd.Context(), gameID)
			if err != nil {
				return err
			}
			return renderGame(g, events)
		},
	}
}

func openStore(cmd *cobra.Command, v *viper.Viper) (*storage.Store, error) {
	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.DatabasePath)
}

func renderAccounts(accounts []*storage.Account) error {
	data := pterm.TableData{{"ID", "Username", "Available", "Locked", "Total"}}
	for _, a := range accounts {
		data = append(data, []string{
			strconv.FormatInt(a.ID, 10),
			a.Username,
			strconv.FormatInt(a.Available, 10),
			strconv.FormatInt(a.Locked, 10),
			strconv.FormatInt(a.Total(), 10),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func renderGame(g *storage.Game, events []storage.Event) error {
	pterm.DefaultSection.Printfln("Game #%d", g.ID)
	summary := pterm.TableData{
		{"Status", g.Status.String()},
		{"Player 1", strconv.FormatInt(g.Player1, 10)},
		{"Player 2", strconv.FormatInt(g.Player2, 10)},
		{"Bet", strconv.FormatInt(g.Bet, 10)},
		{"Free bet until", strconv.FormatInt(g.FreeBetTime, 10)},
		{"Expires", strconv.FormatInt(g.ExpirationTime, 10)},
		{"Accepted at", strconv.FormatInt(g.AcceptanceTime, 10)},
		{"Hands", fmt.Sprintf("%s vs %s", g.Hand1, g.Hand2)},
		{"Verdict", g.Winner.String()},
	}
	if err := pterm.DefaultTable.WithData(summary).Render(); err != nil {
		return err
	}

	pterm.DefaultSection.Println("Events")
	data := pterm.TableData{{"#", "Kind", "Account", "Amount", "Penalty", "Detail"}}
	for _, e := range events {
		data = append(data, []string{
			strconv.FormatInt(e.ID, 10),
			string(e.Kind),
			strconv.FormatInt(e.Account, 10),
			strconv.FormatInt(e.Amount, 10),
			strconv.FormatInt(e.Penalty, 10),
			eventDetail(e),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func eventDetail(e storage.Event) string {
	switch e.Kind {
	case storage.EventGameStatus:
		return e.Status.String()
	case storage.EventHandShown:
		return e.Hand.String()
	case storage.EventVerdict:
		return e.Winner.String()
	case storage.EventCommitment:
		return e.Commitment.String()
	case storage.EventGameMetadata:
		if e.Metadata != nil {
			return fmt.Sprintf("bet=%d free_bet=%d expires=%d", e.Metadata.Bet, e.Metadata.FreeBetTime, e.Metadata.ExpirationTime)
		}
	}
	return ""
}
