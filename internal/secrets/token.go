package secrets

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// Service groups the app's secrets in the OS keychain.
	KeyringService = "prospector"

	TokenEnv = "PROSPECTOR_TOKEN"
)

var ErrNoToken = errors.New("API token not found (set it in keychain or via " + TokenEnv + ")")

// GetAPIToken prefers the keychain, then the environment.
func GetAPIToken(keyringAccount string) (string, error) {
	if strings.TrimSpace(keyringAccount) != "" {
		tok, err := keyring.Get(KeyringService, keyringAccount)
		if err == nil && strings.TrimSpace(tok) != "" {
			return tok, nil
		}
	}
	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		return tok, nil
	}
	return "", ErrNoToken
}

func SetAPIToken(keyringAccount, token string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("token is empty")
	}
	return keyring.Set(KeyringService, keyringAccount, token)
}

func DeleteAPIToken(keyringAccount string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	err := keyring.Delete(KeyringService, keyringAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// APIKeyringAccount derives the account name from the API host when the
// config does not name one.
func APIKeyringAccount(configured, baseURL string) string {
	if s := strings.TrimSpace(configured); s != "" {
		return s
	}
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("prospector:api:%s", host)
}
