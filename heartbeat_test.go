package ringchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeat(t *testing.T) {
	t.Run("should not be expired right after creation", func(t *testing.T) {
		// Arrange
		var sut = newHeartbeat(6 * time.Second)

		// Act & Assert
		assert.False(t, sut.expired(time.Now()))
	})

	t.Run("should expire once the timeout passes", func(t *testing.T) {
		// Arrange
		var sut = newHeartbeat(6 * time.Second)

		// Act & Assert
		assert.True(t, sut.expired(time.Now().Add(7*time.Second)))
		assert.False(t, sut.expired(time.Now().Add(5*time.Second)))
	})

	t.Run("should reset the clock on observe", func(t *testing.T) {
		// Arrange
		var sut = newHeartbeat(6 * time.Second)
		sut.lastSeen = time.Now().Add(-time.Minute)
		assert.True(t, sut.expired(time.Now()))

		// Act
		sut.observe()

		// Assert
		assert.False(t, sut.expired(time.Now()))
	})
}
