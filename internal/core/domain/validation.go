package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxKeyLength     = 255
	maxGuildIDLength = 255
)

// ValidateLicenseKey checks the key length and rejects whitespace and control characters.
func ValidateLicenseKey(key string) error {
	n := utf8.RuneCountInString(key)
	if n < MinLicenseKeyLength {
		return fmt.Errorf("%w: key must be at least %d characters", ErrInvalidInput, MinLicenseKeyLength)
	}
	if n > maxKeyLength {
		return fmt.Errorf("%w: key exceeds %d characters", ErrInvalidInput, maxKeyLength)
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains whitespace or control characters", ErrInvalidInput)
		}
	}
	// Keeps "validate" and friends from shadowing routes under /licenses/.
	if strings.Contains(key, "/") {
		return fmt.Errorf("%w: key cannot contain '/'", ErrInvalidInput)
	}
	return nil
}

// ValidateGuildID checks a tenant identifier supplied by a bot or an administrator.
func ValidateGuildID(guildID string) error {
	if strings.TrimSpace(guildID) == "" {
		return fmt.Errorf("%w: guildId cannot be empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(guildID) > maxGuildIDLength {
		return fmt.Errorf("%w: guildId exceeds %d characters", ErrInvalidInput, maxGuildIDLength)
	}
	return nil
}

// ValidateCreateInput applies the creation rules that do not depend on the store.
func ValidateCreateInput(in CreateLicenseInput) error {
	if err := ValidateLicenseKey(in.Key); err != nil {
		return err
	}
	if strings.TrimSpace(in.Owner) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if in.MaxGuilds != nil && *in.MaxGuilds < 1 {
		return fmt.Errorf("%w: maxGuilds must be at least 1", ErrInvalidInput)
	}
	return nil
}
