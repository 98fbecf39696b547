/*
Package randx provides functions for generating cryptographically secure
random values and unique identifiers.

It is used for UUIDs (identities, connections, message IDs) and for random
Base62 suffixes on generated display names.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))
)

// UUID generates a standard UUID v4 string. Used for identities, message IDs,
// and connection IDs.
func UUID() string {
	return uuid.New().String()
}

// Base62String generates a random Base62 string of the given length using
// crypto/rand.
func Base62String(length int) (string, error) {
	result := make([]byte, length)

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random base62 character: %w", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// DisplayName generates a fallback display name with a "User_" prefix and
// 6 random Base62 characters.
func DisplayName() (string, error) {
	suffix, err := Base62String(6)
	if err != nil {
		return "", err
	}

	return "User_" + suffix, nil
}
