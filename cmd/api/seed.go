package main

import (
	"fmt"

	"lv-marginledger/internal/accounts"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	seedBook     string
	seedLeverage string
	seedPin      string
	seedDeposit  string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a user, optionally with a funded live account",
	Long: `Create a user on the given book and print a bearer token for it.
With --pin a live account is opened as well, and --deposit funds it.

Example usage:
  marginledger seed --book A --leverage 1:100 --pin 1234 --deposit 1000
  marginledger seed --book B`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedBook, "book", "A", "Book of the new user: A or B")
	seedCmd.Flags().StringVar(&seedLeverage, "leverage", "1:100", "Leverage of the live account")
	seedCmd.Flags().StringVar(&seedPin, "pin", "", "4 digit wallet PIN; empty skips the live account")
	seedCmd.Flags().StringVar(&seedDeposit, "deposit", "0", "Initial deposit")
}

func runSeed(cmd *cobra.Command, args []string) error {
	deposit, err := decimal.NewFromString(seedDeposit)
	if err != nil {
		return fmt.Errorf("invalid --deposit: %w", err)
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	user, token, err := a.auth.RegisterOnBook(ctx, seedBook)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "user_id=%s book=%s\ntoken=%s\n", user.ID, user.Book, token)
	if seedPin == "" {
		return nil
	}

	account, err := a.accounts.Create(ctx, user.ID, accounts.CreateRequest{Leverage: seedLeverage, WalletPin: seedPin})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "account_id=%s leverage=1:%d\n", account.ID, account.LeverageValue)
	if deposit.IsPositive() {
		balances, err := a.ledger.Deposit(ctx, account.ID, deposit)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "balance=%s leverage_balance=%s\n", balances.Balance, balances.LeverageBalance)
	}
	return nil
}
