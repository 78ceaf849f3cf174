package main

import (
	"fmt"
	"os"

	"github.com/mpontes/lexgate/internal/config"
	"github.com/mpontes/lexgate/internal/store"
	"github.com/mpontes/lexgate/internal/vault"
)

// Well-known secret names the gateway reads at startup.
const (
	secretOpenAIKey     = "openai_api_key"
	secretGeminiKey     = "gemini_api_key"
	secretTelegramToken = "telegram_token"
)

func runVault(args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Vault.Passphrase == "" {
		return fmt.Errorf("LEXGATE_VAULT_PASSPHRASE environment variable is required")
	}

	v := vault.New(cfg.Vault.Passphrase)

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	switch args[0] {
	case "list":
		return vaultList(db)
	case "set":
		return vaultSet(db, v, args[1:])
	case "get":
		return vaultGet(db, v, args[1:])
	case "delete":
		return vaultDelete(db, args[1:])
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: lexgate vault <command>

Commands:
  list                List stored secret names
  set <name> <value>  Store a secret
  get <name>          Retrieve and decrypt a secret
  delete <name>       Delete a secret

Well-known names read at startup:
  openai_api_key, gemini_api_key, telegram_token

Environment:
  LEXGATE_VAULT_PASSPHRASE   Required. Encryption passphrase.
`)
}

func vaultList(db *store.Store) error {
	names, err := db.ListSecretNames()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No secrets stored.")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func vaultSet(db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: lexgate vault set <name> <value>")
	}
	if err := db.SaveSecret(v, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Secret %q saved\n", args[0])
	return nil
}

func vaultGet(db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lexgate vault get <name>")
	}
	value, err := db.GetSecret(v, args[0])
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("secret %q not found", args[0])
	}
	fmt.Println(value)
	return nil
}

func vaultDelete(db *store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lexgate vault delete <name>")
	}
	if err := db.DeleteSecret(args[0]); err != nil {
		return err
	}
	fmt.Printf("Secret %q deleted\n", args[0])
	return nil
}
