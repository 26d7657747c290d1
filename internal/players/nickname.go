package players

import (
	"fmt"
	"strings"

	"github.com/digitalpulse/tsom-api/internal/apierror"
)

// DefaultNicknameMaxLength is the default nickname limit, in bytes.
const DefaultNicknameMaxLength = 16

// NicknamePolicy constrains the nicknames players may register.
type NicknamePolicy struct {
	// MaxLength is counted in bytes of the trimmed nickname.
	MaxLength     int
	AllowNonASCII bool
}

// DefaultNicknamePolicy allows up to 16 ASCII letters, digits, spaces and
// underscores.
func DefaultNicknamePolicy() NicknamePolicy {
	return NicknamePolicy{MaxLength: DefaultNicknameMaxLength}
}

// ValidateNickname trims raw and checks it against policy, returning the
// nickname to store.
func ValidateNickname(raw string, policy NicknamePolicy) (string, error) {
	nickname := strings.TrimSpace(raw)

	if nickname == "" {
		return "", apierror.InvalidRequest(apierror.CodeNicknameEmpty, "Nickname cannot be empty")
	}

	if len(nickname) > policy.MaxLength {
		return "", apierror.InvalidRequest(apierror.CodeNicknameTooLong,
			fmt.Sprintf("Nickname size exceeds maximum size of %d", policy.MaxLength))
	}

	if !policy.AllowNonASCII && strings.IndexFunc(nickname, isForbiddenNicknameRune) >= 0 {
		return "", apierror.InvalidRequest(apierror.CodeNicknameForbiddenCharacters,
			"Nickname can only have ascii characters")
	}

	return nickname, nil
}

func isForbiddenNicknameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case r == ' ' || r == '_':
		return false
	default:
		return true
	}
}
