package google

import (
	"sync"

	"golang.org/x/oauth2"
)

// RotateFunc persists a token that replaced the previous access token.
type RotateFunc func(tok *oauth2.Token)

// RotatingTokenSource reports every new access token from base to onRotate
// before handing it to the caller.
type RotatingTokenSource struct {
	mu       sync.Mutex
	base     oauth2.TokenSource
	current  string
	onRotate RotateFunc
}

func NewRotatingTokenSource(base oauth2.TokenSource, current string, onRotate RotateFunc) *RotatingTokenSource {
	return &RotatingTokenSource{base: base, current: current, onRotate: onRotate}
}

func (s *RotatingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, wrapError("refresh token", err)
	}
	if tok.AccessToken != s.current {
		s.current = tok.AccessToken
		if s.onRotate != nil {
			s.onRotate(tok)
		}
	}
	return tok, nil
}
