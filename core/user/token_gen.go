package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	resetTokenSalt = []byte("congress/user/password-reset")

	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// ResetTokens makes & checks password reset tokens of the form "<issued at, base36 unix>-<signature>".
// A token stops working once the user's password or last login change, or after the ttl.
type ResetTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewResetTokens(secret string, ttl time.Duration) *ResetTokens {
	key := sha256.Sum256(append(append([]byte{}, resetTokenSalt...), secret...))
	return &ResetTokens{key: key[:], ttl: ttl, now: time.Now}
}

func (rt *ResetTokens) Make(usr User) string {
	return rt.make(usr, rt.now().Unix())
}

func (rt *ResetTokens) Check(usr User, token string) error {
	tsPart, _, ok := strings.Cut(token, "-")
	if !ok {
		return errInvalidToken
	}
	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil || ts <= 0 {
		return errInvalidToken
	}
	if !hmac.Equal([]byte(rt.make(usr, ts)), []byte(token)) {
		return errInvalidToken
	}
	if rt.now().Sub(time.Unix(ts, 0)) > rt.ttl {
		return errTokenExpired
	}
	return nil
}

func (rt *ResetTokens) make(usr User, ts int64) string {
	h := hmac.New(sha256.New, rt.key)
	h.Write([]byte(usr.ID))
	h.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		h.Write([]byte(usr.LastLogin.UTC().Format(time.RFC3339)))
	}
	tsPart := strconv.FormatInt(ts, 36)
	h.Write([]byte(tsPart))
	return tsPart + "-" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// EncodeUID makes the user ID URL safe for reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func DecodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", errors.Wrap(err, "decoding uid")
	}
	return string(id), nil
}
