package localstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const DefaultLinkTTL = 15 * time.Minute

var (
	errLinkExpired   = errors.New("link expired")
	errBadSignature  = errors.New("invalid link signature")
	errMissingExpiry = errors.New("link carries no expiry")
)

// signer issues and checks links valid for one method on one path until
// they expire.
type signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newSigner(secret []byte, ttl time.Duration) *signer {
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &signer{secret: secret, ttl: ttl, now: time.Now}
}

func (s *signer) mac(method, path, expires string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(method + "\n" + path + "\n" + expires))
	return hex.EncodeToString(h.Sum(nil))
}

// sign returns base+path with the expiry and signature appended.
func (s *signer) sign(base, method, path string) string {
	expires := strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("signature", s.mac(method, path, expires))
	return base + path + "?" + q.Encode()
}

func (s *signer) verify(method, path string, q url.Values) error {
	expires := q.Get("expires")
	if expires == "" {
		return errMissingExpiry
	}
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return errors.Wrap(errMissingExpiry, err.Error())
	}
	want := s.mac(method, path, expires)
	if !hmac.Equal([]byte(want), []byte(q.Get("signature"))) {
		return errBadSignature
	}
	if s.now().Unix() > unix {
		return errLinkExpired
	}
	return nil
}
