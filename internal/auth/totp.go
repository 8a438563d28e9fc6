package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// totpCode returns the 6-digit TOTP for the bound secret at t. Standard
// parameters: 30s step, SHA1, Unix epoch — what Microsoft Authenticator
// issues.
func totpCode(secret string, t time.Time) (string, error) {
	secret = strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(secret)), " ", "")
	code, err := totp.GenerateCode(secret, t)
	if err != nil {
		return "", fmt.Errorf("generate totp: %w", err)
	}
	return code, nil
}
