package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDestinations(t *testing.T) {
	assert.Equal(t, "/topic/notifications/u1", Notifications("u1"))
	assert.Equal(t, "/topic/messages/u1", Messages("u1"))
	assert.Equal(t, "/topic/listing/l1/favoriteCount", FavoriteCount("l1"))
}

func TestOwner(t *testing.T) {
	assert.Equal(t, "u1", Owner(Notifications("u1")))
	assert.Equal(t, "u2", Owner(Messages("u2")))
	assert.Empty(t, Owner(FavoriteCount("l1")))
	assert.Empty(t, Owner("/topic/messages/"))
	assert.Empty(t, Owner("/topic/messages/u1/extra"))
}

func TestIsFavoriteCount(t *testing.T) {
	assert.True(t, IsFavoriteCount(FavoriteCount("l1")))
	assert.False(t, IsFavoriteCount("/topic/listing//favoriteCount"))
	assert.False(t, IsFavoriteCount("/topic/listing/l1/views"))
	assert.False(t, IsFavoriteCount(Messages("u1")))
}
