package memory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/sheetscan/internal/models"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Put(ctx, "uploads/a.png", strings.NewReader("img"), 3, "image/png"))

	rc, err := s.Get(ctx, "uploads/a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))

	require.NoError(t, s.Delete(ctx, "uploads/a.png"))
	_, err = s.Get(ctx, "uploads/a.png")
	assert.ErrorIs(t, err, models.ErrObjectNotFound)
}

func TestCleanupBeforeHonorsPrefixAndAge(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	require.NoError(t, s.Put(ctx, "uploads/old", strings.NewReader("x"), 1, ""))
	require.NoError(t, s.Put(ctx, "results/old", strings.NewReader("x"), 1, ""))
	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, s.Put(ctx, "uploads/new", strings.NewReader("x"), 1, ""))

	n, err := s.CleanupBefore(ctx, "uploads/", base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"results/old", "uploads/new"}, s.Keys())
}
