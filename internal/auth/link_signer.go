package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	apperrors "github.com/spec-kit/opsdesk/pkg/util/errorutil"
)

// DefaultLinkMaxAge is how long an emailed link stays valid.
const DefaultLinkMaxAge = 7 * 24 * time.Hour

// LinkSigner issues and checks the HMAC tokens carried by emailed approve
// and return links. Tokens are stateless; replay is stopped by the status
// guard on the entity, not here.
type LinkSigner struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewLinkSigner builds a signer. A non-positive maxAge uses DefaultLinkMaxAge.
// An empty secret is replaced by random bytes, so links only verify within
// this process.
func NewLinkSigner(secret string, maxAge time.Duration) *LinkSigner {
	if maxAge <= 0 {
		maxAge = DefaultLinkMaxAge
	}
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("auth: random link secret: " + err.Error())
		}
	}
	return &LinkSigner{secret: key, maxAge: maxAge, now: time.Now}
}

// WithClock replaces the time source.
func (s *LinkSigner) WithClock(now func() time.Time) *LinkSigner {
	s.now = now
	return s
}

// Issue signs id at the current time.
func (s *LinkSigner) Issue(id int64) (string, int64) {
	issuedAt := s.now().Unix()
	return s.IssueAt(id, issuedAt), issuedAt
}

// IssueAt signs id for the given unix timestamp.
func (s *LinkSigner) IssueAt(id int64, issuedAt int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(id, 10) + ":" + strconv.FormatInt(issuedAt, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks token for id and issuedAt. Expiry is checked before the
// digest so an old link reports expired even if it was tampered with.
func (s *LinkSigner) Verify(id int64, token string, issuedAt int64) error {
	if s.now().Sub(time.Unix(issuedAt, 0)) > s.maxAge {
		return apperrors.NewTokenExpired()
	}
	given, err := hex.DecodeString(token)
	if err != nil {
		return apperrors.NewTokenInvalid()
	}
	expected, _ := hex.DecodeString(s.IssueAt(id, issuedAt))
	if !hmac.Equal(given, expected) {
		return apperrors.NewTokenInvalid()
	}
	return nil
}
