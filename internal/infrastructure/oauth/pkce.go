package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/domain"
)

// Challenge is one PKCE verifier/challenge pair. It is owned by exactly one
// in-flight authorization attempt and must never be reused across attempts.
type Challenge struct {
	Verifier  string
	Challenge string
}

// PKCEGenerator produces verifier/challenge pairs from an injectable
// randomness source. Production uses crypto/rand; tests can substitute a
// recording or failing reader.
type PKCEGenerator struct {
	random io.Reader
}

func NewPKCEGenerator() *PKCEGenerator {
	return &PKCEGenerator{random: rand.Reader}
}

func NewPKCEGeneratorWithSource(r io.Reader) *PKCEGenerator {
	return &PKCEGenerator{random: r}
}

// Generate returns a fresh PKCE pair. 32 random bytes base64url-encode to a
// 43-char verifier, the RFC 7636 minimum, drawn from the unreserved charset.
// The challenge is base64url(SHA-256(verifier)) without padding, so it never
// contains '+', '/' or '='.
func (g *PKCEGenerator) Generate() (Challenge, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(g.random, b); err != nil {
		return Challenge{}, domain.ErrRandomFailed(err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(b)

	h := sha256.Sum256([]byte(verifier))
	return Challenge{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(h[:]),
	}, nil
}

// ChallengeFromVerifier recomputes the S256 challenge for a stored verifier.
func ChallengeFromVerifier(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
