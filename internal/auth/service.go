package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// Service guards the API with one shared access token. An empty token
// disables every check.
type Service struct {
	token          string
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

func NewService(token string) *Service {
	return &Service{
		token:          strings.TrimSpace(token),
		cookieName:     "zonewatch_token",
		headerName:     "Authorization",
		csrfCookieName: "zonewatch_csrf",
		csrfHeaderName: "X-CSRF-Token",
	}
}

func (s *Service) Enabled() bool {
	return s != nil && s.token != ""
}

// Validate compares in constant time.
func (s *Service) Validate(token string) bool {
	if !s.Enabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

func (s *Service) AuthCookieName() string { return s.cookieName }

func (s *Service) CSRFCookieName() string { return s.csrfCookieName }

func (s *Service) CSRFHeaderName() string { return s.csrfHeaderName }

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
