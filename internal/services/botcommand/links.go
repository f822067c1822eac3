package botcommand

import (
	"net/url"
	"strings"

	"github.com/quipper/poc/membercard/pkg/common/linktoken"
)

// Links builds the absolute URLs sent back through the chat.
type Links struct {
	signer *linktoken.Signer
}

// NewLinks returns a builder. With a nil signer links carry no token.
func NewLinks(signer *linktoken.Signer) *Links {
	return &Links{signer: signer}
}

// Registration returns the registration form URL for externalID.
func (l *Links) Registration(baseURL, externalID string) (string, error) {
	return l.build(baseURL, "/register", externalID)
}

// Card returns the web membership card URL for externalID.
func (l *Links) Card(baseURL, externalID string) (string, error) {
	return l.build(baseURL, "/show_member_card", externalID)
}

func (l *Links) build(baseURL, path, externalID string) (string, error) {
	q := url.Values{}
	q.Set("user_id", externalID)
	if l != nil && l.signer != nil {
		tok, err := l.signer.Sign(externalID)
		if err != nil {
			return "", err
		}
		q.Set("token", tok)
	}
	return join(baseURL, path, q), nil
}

func join(baseURL, path string, q url.Values) string {
	return strings.TrimRight(baseURL, "/") + path + "?" + q.Encode()
}
