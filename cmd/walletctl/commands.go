package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"legitify/internal/identity/enroll"
	"legitify/internal/identity/models"
)

// Wallet is the identity store walletctl edits.
type Wallet interface {
	Put(ctx context.Context, identity models.Identity) error
	Delete(ctx context.Context, org, label string) error
	List(ctx context.Context, org string) ([]models.Summary, error)
}

// Opener connects to the wallet named by a database url.
type Opener func(ctx context.Context, url string) (Wallet, io.Closer, error)

type importFlags struct {
	org    string
	label  string
	mspID  string
	mspDir string
}

func newRootCommand(open Opener) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LEGITIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "Manage ledger wallet identities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("database-url", "", "postgres url of the wallet (env LEGITIFY_DATABASE_URL)")
	_ = v.BindPFlag("database-url", root.PersistentFlags().Lookup("database-url"))

	withWallet := func(cmd *cobra.Command, fn func(ctx context.Context, w Wallet) error) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		w, closer, err := open(ctx, v.GetString("database-url"))
		if err != nil {
			return err
		}
		defer closer.Close()
		return fn(ctx, w)
	}

	root.AddCommand(
		newImportCommand(withWallet),
		newListCommand(withWallet),
		newDeleteCommand(withWallet),
	)
	return root
}

type walletRunner func(cmd *cobra.Command, fn func(ctx context.Context, w Wallet) error) error

func newImportCommand(run walletRunner) *cobra.Command {
	flags := &importFlags{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an enrolled MSP directory as a wallet identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, w Wallet) error {
				identity, err := enroll.MSPDir{
					Path:  flags.mspDir,
					MSPID: flags.mspID,
					Label: flags.label,
				}.Enroll(ctx, flags.org)
				if err != nil {
					return fmt.Errorf("enroll %s: %w", flags.mspDir, err)
				}
				if err := w.Put(ctx, identity); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s/%s (%s)\n", identity.Organization, identity.Label, identity.MSPID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&flags.org, "org", "", "organization name")
	cmd.Flags().StringVar(&flags.label, "label", "", "wallet label")
	cmd.Flags().StringVar(&flags.mspID, "msp-id", "", "MSP id of the organization")
	cmd.Flags().StringVar(&flags.mspDir, "msp-dir", "", "MSP directory with signcerts/ and keystore/")
	for _, name := range []string{"org", "label", "msp-id", "msp-dir"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newListCommand(run walletRunner) *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List wallet identities of an organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, w Wallet) error {
				summaries, err := w.List(ctx, org)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ORGANIZATION\tLABEL\tMSP ID\tCREATED")
				for _, s := range summaries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Organization, s.Label, s.MSPID, s.CreatedAt.UTC().Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization name")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newDeleteCommand(run walletRunner) *cobra.Command {
	var org, label string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a wallet identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, w Wallet) error {
				if err := w.Delete(ctx, org, label); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", org, label)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization name")
	cmd.Flags().StringVar(&label, "label", "", "wallet label")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}
