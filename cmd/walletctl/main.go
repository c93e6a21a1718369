// Command walletctl manages the wallet identities the API uses to reach the
// ledger: import an enrolled MSP directory, list labels, delete a label.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"legitify/internal/identity/store"
	"legitify/internal/platform/config"
	"legitify/internal/platform/database"
)

func main() {
	root := newRootCommand(openPostgresWallet)
	if err := root.Execute(); err != nil {
		slog.Error("walletctl failed", "error", err)
		os.Exit(1)
	}
}

// openPostgresWallet connects to the wallet_identities table at url.
func openPostgresWallet(ctx context.Context, url string) (Wallet, io.Closer, error) {
	if url == "" {
		return nil, nil, fmt.Errorf("database url is required (--database-url or LEGITIFY_DATABASE_URL)")
	}
	pool, err := database.New(ctx, config.DatabaseConfig{URL: url, MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgres(pool.DB()), pool, nil
}
