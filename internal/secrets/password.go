// Package secrets keeps mailbox passwords and the SES secret key in the OS
// keychain so they never land in config.yml.
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService groups the engine's secrets in the OS keychain.
	KeyringService = "astremina"

	sesAccountPrefix = "astremina:ses:"
)

var ErrNotFound = errors.New("secret not found in keychain")

func get(account string) (string, error) {
	if strings.TrimSpace(account) == "" {
		return "", errors.New("keyring account name is empty")
	}
	pw, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) || (err == nil && strings.TrimSpace(pw) == "") {
		return "", fmt.Errorf("%s: %w", account, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s: %w", account, err)
	}
	return pw, nil
}

func set(account, secret string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(secret) == "" {
		return errors.New("secret is empty")
	}
	return keyring.Set(KeyringService, account, secret)
}

// GetIMAPPassword matches mailbox.PasswordFunc. account is the value of
// mailbox.Target.Account.
func GetIMAPPassword(account string) (string, error) {
	return get(account)
}

func SetIMAPPassword(account, password string) error {
	return set(account, password)
}

func DeleteIMAPPassword(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}

// SESAccount names the keychain entry for an access key id.
func SESAccount(accessKeyID string) string {
	return sesAccountPrefix + accessKeyID
}

func GetSESSecret(accessKeyID string) (string, error) {
	return get(SESAccount(accessKeyID))
}

func SetSESSecret(accessKeyID, secret string) error {
	return set(SESAccount(accessKeyID), secret)
}
