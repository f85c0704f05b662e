package sealer

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestSealOpen(t *testing.T) {
	s := New("token-key")
	sealed, err := s.Seal("ya29.access")
	be.Err(t, err, nil)
	be.True(t, strings.HasPrefix(sealed, prefix))
	be.True(t, !strings.Contains(sealed, "ya29"))

	opened, err := s.Open(sealed)
	be.Err(t, err, nil)
	be.Equal(t, opened, "ya29.access")
}

func TestOpenRejectsOtherKey(t *testing.T) {
	sealed, err := New("one").Seal("secret")
	be.Err(t, err, nil)

	_, err = New("two").Open(sealed)
	be.Err(t, err, ErrCorrupt)
}

func TestPlaintextPassesThrough(t *testing.T) {
	opened, err := New("key").Open("legacy-plaintext")
	be.Err(t, err, nil)
	be.Equal(t, opened, "legacy-plaintext")

	var disabled *Sealer
	sealed, err := disabled.Seal("value")
	be.Err(t, err, nil)
	be.Equal(t, sealed, "value")
}
