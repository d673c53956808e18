package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()
	r.Create("P1")
	require.True(t, r.AddStock("AAPL"))
	require.True(t, r.AddStock("msft"))
	require.True(t, r.RemoveStock("AAPL"))

	assert.Equal(t, []string{"MSFT"}, r.GetStocks("P1"))
}

func TestRegistry_SetActiveUnknownKeepsActive(t *testing.T) {
	r := NewRegistry()
	r.Create("P1")
	assert.False(t, r.SetActive("nonexistent"))
	active, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, "P1", active)
}

func TestRegistry_CreateIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Create("P1")
	r.AddStock("AAPL")
	r.Create("P2")
	r.Create("P1")

	active, _ := r.Active()
	assert.Equal(t, "P1", active)
	assert.Equal(t, []string{"P1", "P2"}, r.ListNames())
	assert.Equal(t, []string{"AAPL"}, r.GetStocks("P1"), "recreating keeps members")
}

func TestRegistry_NoActivePortfolio(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Active()
	assert.False(t, ok)
	assert.False(t, r.AddStock("AAPL"))
	assert.False(t, r.RemoveStock("AAPL"))
	assert.Empty(t, r.ListNames())
	assert.Nil(t, r.GetStocks("P1"))
}

func TestRegistry_DuplicatesCollapse(t *testing.T) {
	r := NewRegistry()
	r.Create("tech")
	r.AddStock("AAPL")
	r.AddStock(" aapl ")
	r.AddStock("")
	assert.Equal(t, []string{"AAPL"}, r.GetStocks("tech"))
	assert.False(t, r.RemoveStock("XOM"))
	assert.True(t, r.Has("tech"))
}
