package trace

import (
	"context"
	"testing"

	"github.com/nalgeon/be"
)

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	ctx, id := Ensure(ctx)
	be.Equal(t, id, "abc")
	be.Equal(t, FromContext(ctx), "abc")
}

func TestEnsureGeneratesID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	be.Equal(t, len(id), 32)
	be.Equal(t, FromContext(ctx), id)
}
