package qstash

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

const signatureIssuer = "Upstash"

var ErrInvalidSignature = errors.New("qstash: invalid signature")

type signatureClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// Verify checks an Upstash-Signature header against body. The current signing key is tried first,
// then the next one so deliveries survive key rotation.
func (c *Client) Verify(signature string, body []byte) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrInvalidSignature)
	}
	if c.currentSigningKey == "" {
		return fmt.Errorf("%w: no signing key configured", ErrInvalidSignature)
	}

	err := c.verifyWithKey(c.currentSigningKey, signature, body)
	if err == nil {
		return nil
	}
	if c.nextSigningKey != "" {
		if nextErr := c.verifyWithKey(c.nextSigningKey, signature, body); nextErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
}

func (c *Client) verifyWithKey(key, signature string, body []byte) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &signatureClaims{}
	if _, err := parser.ParseWithClaims(signature, claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	}); err != nil {
		return err
	}

	now := c.now()
	if !claims.VerifyIssuer(signatureIssuer, true) {
		return fmt.Errorf("issuer %q is not %s", claims.Issuer, signatureIssuer)
	}
	if !claims.VerifyExpiresAt(now, true) {
		return errors.New("token is expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return errors.New("token is not valid yet")
	}
	if c.webhookURL != "" && claims.Subject != c.webhookURL {
		return fmt.Errorf("subject %q does not match webhook url", claims.Subject)
	}

	sum := sha256.Sum256(body)
	want := strings.TrimRight(base64.URLEncoding.EncodeToString(sum[:]), "=")
	if strings.TrimRight(claims.Body, "=") != want {
		return errors.New("body hash does not match")
	}
	return nil
}
