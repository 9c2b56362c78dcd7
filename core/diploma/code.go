package diploma

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"strings"
)

const (
	codeGroups   = 3
	codeGroupLen = 4
	codeLen      = codeGroups * codeGroupLen
)

// Crockford-like alphabet: no I, L, O, U to keep codes easy to read out loud.
var codeEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// MakeCode derives the verification code of the (user, activity, kind) diploma, ie: "7K2M-Q9XD-4TBA".
// The same triple always yields the same code under the same secret.
func MakeCode(secret, userID, activityID, kind string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(userID))
	h.Write([]byte{'|'})
	h.Write([]byte(activityID))
	h.Write([]byte{'|'})
	h.Write([]byte(kind))

	raw := codeEncoding.EncodeToString(h.Sum(nil))[:codeLen]
	return format(raw)
}

// NormalizeCode turns user input into the canonical code form.
// Case, spaces and dashes are ignored; "" is returned for anything that cannot be a code.
func NormalizeCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		switch {
		case r == '-' || r == ' ' || r == '\t':
			continue
		case r == 'O':
			r = '0'
		case r == 'I' || r == 'L':
			r = '1'
		}
		if !strings.ContainsRune("0123456789ABCDEFGHJKMNPQRSTVWXYZ", r) {
			return ""
		}
		b.WriteRune(r)
	}
	if b.Len() != codeLen {
		return ""
	}
	return format(b.String())
}

func format(raw string) string {
	parts := make([]string, 0, codeGroups)
	for i := 0; i < len(raw); i += codeGroupLen {
		parts = append(parts, raw[i:i+codeGroupLen])
	}
	return strings.Join(parts, "-")
}
