package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestCategoryRequest(t *testing.T) {
	c, err := CategoryRequest{Name: strp("  Tools "), Description: strp("hand tools")}.NewCategory()
	require.NoError(t, err)
	assert.Equal(t, "Tools", c.Name)
	assert.NotEmpty(t, c.ID)

	_, err = CategoryRequest{Description: strp("x")}.NewCategory()
	assert.ErrorIs(t, err, ErrNameRequired)

	assert.ErrorIs(t, CategoryRequest{Name: strp(" ")}.Apply(c), ErrNameRequired)
	require.NoError(t, CategoryRequest{Description: strp("power tools")}.Apply(c))
	assert.Equal(t, "Tools", c.Name)
	assert.Equal(t, "power tools", c.Description)
}

func TestMemoryCategories(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryCategories()

	a, _ := CategoryRequest{Name: strp("Audio")}.NewCategory()
	b, _ := CategoryRequest{Name: strp("Books")}.NewCategory()
	require.NoError(t, r.Create(ctx, a))
	require.NoError(t, r.Create(ctx, b))
	dup, _ := CategoryRequest{Name: strp("audio")}.NewCategory()
	assert.ErrorIs(t, r.Create(ctx, dup), ErrAlreadyExists)

	list, err := r.List(ctx, Query{Search: "au"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	page, err := r.List(ctx, Query{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Books", page[0].Name)

	renamed := *a
	renamed.Name = "Books"
	assert.ErrorIs(t, r.Update(ctx, &renamed), ErrAlreadyExists)
	renamed.Name = "Hi-Fi"
	require.NoError(t, r.Update(ctx, &renamed))
	got, err := r.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi-Fi", got.Name)
	assert.Equal(t, a.CreatedAt, got.CreatedAt)

	ok, _ := r.Delete(ctx, a.ID)
	assert.True(t, ok)
	_, err = r.GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySuppliers_Ensure(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySuppliers()

	require.NoError(t, r.Ensure(ctx, "Acme"))
	require.NoError(t, r.Ensure(ctx, "Acme"))
	list, err := r.List(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
