package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pagebuilder/api-server/internal/auth"
	"github.com/pagebuilder/api-server/internal/config"
	"github.com/pagebuilder/api-server/internal/models"
	"github.com/pagebuilder/api-server/internal/store"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate a new API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysGenerate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all API keys",
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

var keyExpires string

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysListCmd, keysRevokeCmd)

	keysGenerateCmd.Flags().StringVar(&keyExpires, "expires", "", "expiry date (RFC3339), empty for no expiry")
}

func openKeyStore() (*store.KeyStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := store.Connect(cfg)
	if err != nil {
		return nil, err
	}

	return store.NewKeyStore(db), nil
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	keys, err := openKeyStore()
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if keyExpires != "" {
		t, err := time.Parse(time.RFC3339, keyExpires)
		if err != nil {
			return fmt.Errorf("invalid --expires value: %w", err)
		}
		expiresAt = &t
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		return err
	}

	key := models.APIKey{
		Name:       args[0],
		SecretHash: auth.HashSecret(secret),
		Preview:    auth.Preview(secret),
		Status:     models.KeyStatusActive,
		ExpiresAt:  expiresAt,
	}

	if err := keys.Create(context.Background(), &key); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}

	fmt.Printf("Generated key #%d (%s)\n", key.ID, key.Name)
	fmt.Printf("API key: %s\n", secret)
	fmt.Println("Save it now; only its hash is stored and it cannot be retrieved again.")
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	keys, err := openKeyStore()
	if err != nil {
		return err
	}

	all, err := keys.ListAll(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(all) == 0 {
		fmt.Println("No API keys.")
		return nil
	}

	for _, k := range all {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("#%d\t%s\t%s\t%s\trequests=%d\texpires=%s\n",
			k.ID, k.Name, k.Preview, k.Status, k.RequestCount, expires)
	}
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	keys, err := openKeyStore()
	if err != nil {
		return err
	}

	var id uint
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid key id %q", args[0])
	}

	if err := keys.Revoke(context.Background(), id); err != nil {
		return fmt.Errorf("failed to revoke key %d: %w", id, err)
	}

	fmt.Printf("Key #%d revoked\n", id)
	return nil
}
