package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned for malformed or tampered download tokens.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrTokenExpired is returned when a well-formed token is past its expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// SignedURLSigner creates and validates HMAC-SHA256 signed download tokens of the
// form jobID.expiryUnix.base64(path).signature.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a signed token referencing the job and stored file path.
func (s *SignedURLSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("jobID and relPath required")
	}
	if strings.Contains(jobID, ".") {
		return "", time.Time{}, fmt.Errorf("jobID must not contain '.'")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{jobID, exp, encodedPath, s.sign(jobID, exp, encodedPath)}, ".")
	return token, time.Unix(expiresAt.Unix(), 0), nil
}

// Parse validates a token and returns the embedded metadata. allowExpired skips
// the expiry check so cleanup can still locate files behind stale tokens.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, ErrInvalidToken
	}
	jobID, exp, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(jobID, exp, encodedPath)), []byte(signature)) {
		return "", "", time.Time{}, ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: decode path: %v", ErrInvalidToken, err)
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: timestamp", ErrInvalidToken)
	}
	expiresAt = time.Unix(expUnix, 0)
	if !allowExpired && s.now().After(expiresAt) {
		return "", "", time.Time{}, ErrTokenExpired
	}
	return jobID, string(rawPath), expiresAt, nil
}

func (s *SignedURLSigner) sign(jobID, exp, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(jobID + "|" + exp + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
