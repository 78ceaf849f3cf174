package store

import (
	"database/sql"
	"fmt"

	"github.com/mpontes/lexgate/internal/vault"
)

// Provider API keys live in the secrets table encrypted at rest. The
// vault produces a self-contained "nonce:ciphertext" string per value.

func (s *Store) SaveSecret(v *vault.Vault, name, plaintext string) error {
	enc, err := v.EncryptString(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt secret: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO secrets (name, value)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		name, enc)
	if err != nil {
		return fmt.Errorf("save secret: %w", err)
	}
	return nil
}

// GetSecret returns the decrypted value, or "" when no secret is stored
// under that name.
func (s *Store) GetSecret(v *vault.Vault, name string) (string, error) {
	var enc string
	err := s.db.QueryRow(`SELECT value FROM secrets WHERE name = ?`, name).Scan(&enc)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get secret: %w", err)
	}
	plain, err := v.DecryptString(enc)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}
	return plain, nil
}

func (s *Store) ListSecretNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM secrets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) DeleteSecret(name string) error {
	_, err := s.db.Exec(`DELETE FROM secrets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}
