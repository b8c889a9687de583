package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository/memory"
)

func TestDenyGetOnly(t *testing.T) {
	inner := memory.NewBlobStore()
	store := Deny(inner, OpGet)
	ctx := context.Background()

	require.NoError(t, store.PutObject(ctx, "items/a.json", []byte(`{}`), "application/json"))
	require.Equal(t, 1, inner.Len())

	_, err := store.GetObject(ctx, "items/a.json")
	require.True(t, repository.IsAccessDenied(err))
	require.Equal(t, repository.CodeAccessDenied, repository.Code(err))
}

func TestDenyPut(t *testing.T) {
	inner := memory.NewBlobStore()
	store := Deny(inner, OpPut)

	err := store.PutObject(context.Background(), "k", []byte("x"), "text/plain")
	require.ErrorIs(t, err, repository.ErrAccessDenied)
	require.Zero(t, inner.Len())
}

func TestParseOperations(t *testing.T) {
	require.Equal(t, []Operation{OpGet, OpPut}, ParseOperations(" GET, put ,delete"))
	require.Empty(t, ParseOperations(""))
	require.False(t, Deny(memory.NewBlobStore()).Denies(OpGet))
}
