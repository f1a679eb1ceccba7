package ringchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembership(t *testing.T) {
	var (
		newIdentity = func(id int) Identity {
			return Identity{ID: id, Host: "127.0.0.1", RingPort: 5000 + id, ClientPort: 6000 + id}
		}
		newView = func(selfID int, peerIDs ...int) *membership {
			var m = newMembership(newIdentity(selfID))
			for _, id := range peerIDs {
				m.add(newIdentity(id))
			}
			return m
		}
	)

	t.Run("should contain self on creation", func(t *testing.T) {
		// Arrange & Act
		var sut = newView(205)

		// Assert
		assert.Equal(t, 1, sut.size())
		var self, ok = sut.get(205)
		require.True(t, ok)
		assert.Equal(t, 205, self.ID)
	})

	t.Run("should report a previously unknown peer as new", func(t *testing.T) {
		// Arrange
		var sut = newView(205)

		// Act
		var isNew = sut.add(newIdentity(101))

		// Assert
		assert.True(t, isNew)
		assert.Equal(t, 2, sut.size())
	})

	t.Run("should treat duplicate announcements as no-ops", func(t *testing.T) {
		// Arrange
		var sut = newView(205, 101)

		// Act
		var isNew = sut.add(newIdentity(101))

		// Assert
		assert.False(t, isNew)
		assert.Equal(t, 2, sut.size())
	})

	t.Run("should never remove self", func(t *testing.T) {
		// Arrange
		var sut = newView(205, 101)

		// Act
		sut.remove(205)

		// Assert
		var _, ok = sut.get(205)
		assert.True(t, ok)
	})

	t.Run("should remove a peer", func(t *testing.T) {
		// Arrange
		var sut = newView(205, 101, 330)

		// Act
		sut.remove(330)

		// Assert
		assert.Equal(t, 2, sut.size())
		var _, ok = sut.get(330)
		assert.False(t, ok)
	})

	t.Run("should snapshot in ascending id order", func(t *testing.T) {
		// Arrange
		var sut = newView(205, 330, 101)

		// Act
		var all = sut.snapshot()

		// Assert
		require.Len(t, all, 3)
		assert.Equal(t, 101, all[0].ID)
		assert.Equal(t, 205, all[1].ID)
		assert.Equal(t, 330, all[2].ID)
	})

	t.Run("should have no neighbors while alone", func(t *testing.T) {
		// Arrange
		var sut = newView(205)

		// Act
		var nb = sut.neighbors()

		// Assert
		assert.Nil(t, nb.left)
		assert.Nil(t, nb.right)
	})

	t.Run("should pair both neighbors in a two-node ring", func(t *testing.T) {
		// Arrange
		var sut = newView(205, 101)

		// Act
		var nb = sut.neighbors()

		// Assert
		require.NotNil(t, nb.left)
		require.NotNil(t, nb.right)
		assert.Equal(t, 101, nb.left.ID)
		assert.Equal(t, 101, nb.right.ID)
	})

	t.Run("should order neighbors by id in the middle of the ring", func(t *testing.T) {
		// Arrange
		var sut = newView(205, 101, 330)

		// Act
		var nb = sut.neighbors()

		// Assert
		require.NotNil(t, nb.left)
		require.NotNil(t, nb.right)
		assert.Equal(t, 101, nb.left.ID)
		assert.Equal(t, 330, nb.right.ID)
	})

	t.Run("should wrap neighbors around the ring ends", func(t *testing.T) {
		// Arrange: the largest id wraps right to the smallest
		var largest = newView(330, 101, 205)

		// Act
		var nb = largest.neighbors()

		// Assert
		require.NotNil(t, nb.left)
		require.NotNil(t, nb.right)
		assert.Equal(t, 205, nb.left.ID)
		assert.Equal(t, 101, nb.right.ID)

		// Arrange: the smallest id wraps left to the largest
		var smallest = newView(101, 205, 330)

		// Act
		nb = smallest.neighbors()

		// Assert
		assert.Equal(t, 330, nb.left.ID)
		assert.Equal(t, 205, nb.right.ID)
	})
}
