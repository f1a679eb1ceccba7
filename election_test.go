package ringchat

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sendRecorder captures ring records instead of delivering them.
type sendRecorder struct {
	sent []ringRecord
	err  error
}

func (s *sendRecorder) sendRight(rec ringRecord) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, rec)
	return nil
}

func TestElection(t *testing.T) {
	var newElect = func(selfID int) (*election, *sendRecorder) {
		var (
			recorder = &sendRecorder{}
			opts     = defaultOptions()
		)
		opts.electionCooldown = 0
		return newElection(selfID, recorder, opts), recorder
	}

	t.Run("should nominate itself on initiate", func(t *testing.T) {
		// Arrange
		var sut, recorder = newElect(205)

		// Act
		var err = sut.initiate()

		// Assert
		require.NoError(t, err)
		require.Len(t, recorder.sent, 1)
		assert.Equal(t, ringRecord{kind: recElection, id: 205}, recorder.sent[0])
		assert.Equal(t, phaseParticipant, sut.phase)
		assert.Equal(t, noLeader, sut.leader())
	})

	t.Run("should forward a higher candidacy unchanged", func(t *testing.T) {
		// Arrange
		var sut, recorder = newElect(205)

		// Act
		var err = sut.onElection(330)

		// Assert
		require.NoError(t, err)
		require.Len(t, recorder.sent, 1)
		assert.Equal(t, ringRecord{kind: recElection, id: 330}, recorder.sent[0])
		assert.Equal(t, phaseParticipant, sut.phase)
	})

	t.Run("should substitute its own id for a lower candidacy while idle", func(t *testing.T) {
		// Arrange
		var sut, recorder = newElect(205)

		// Act
		var err = sut.onElection(101)

		// Assert: the smaller id is discarded, never forwarded
		require.NoError(t, err)
		require.Len(t, recorder.sent, 1)
		assert.Equal(t, ringRecord{kind: recElection, id: 205}, recorder.sent[0])
	})

	t.Run("should suppress a lower candidacy while participating", func(t *testing.T) {
		// Arrange
		var sut, recorder = newElect(205)
		require.NoError(t, sut.initiate())

		// Act
		var err = sut.onElection(101)

		// Assert: nothing beyond the initial nomination went out
		require.NoError(t, err)
		assert.Len(t, recorder.sent, 1)
	})

	t.Run("should declare leadership when its own id returns", func(t *testing.T) {
		// Arrange
		var sut, recorder = newElect(205)
		require.NoError(t, sut.initiate())

		// Act
		var err = sut.onElection(205)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 205, sut.leader())
		assert.True(t, sut.isLeader())
		assert.Equal(t, phaseIdle, sut.phase)
		require.Len(t, recorder.sent, 2)
		assert.Equal(t, ringRecord{kind: recLeader, id: 205}, recorder.sent[1])
	})

	t.Run("should adopt and forward a leader announcement", func(t *testing.T) {
		// Arrange
		var sut, recorder = newElect(205)

		// Act
		var err = sut.onLeader(330)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 330, sut.leader())
		assert.False(t, sut.isLeader())
		assert.Equal(t, phaseIdle, sut.phase)
		require.Len(t, recorder.sent, 1)
		assert.Equal(t, ringRecord{kind: recLeader, id: 330}, recorder.sent[0])
	})

	t.Run("should stop a leader announcement at its origin", func(t *testing.T) {
		// Arrange
		var sut, recorder = newElect(205)
		require.NoError(t, sut.onElection(205))
		recorder.sent = nil

		// Act: our own announcement completed its circuit
		var err = sut.onLeader(205)

		// Assert
		require.NoError(t, err)
		assert.Empty(t, recorder.sent)
		assert.True(t, sut.isLeader())
	})

	t.Run("should rate-limit repeated initiations", func(t *testing.T) {
		// Arrange
		var (
			recorder = &sendRecorder{}
			opts     = defaultOptions()
		)
		opts.electionCooldown = time.Hour
		var sut = newElection(205, recorder, opts)

		// Act
		require.NoError(t, sut.initiate())
		require.NoError(t, sut.initiate())

		// Assert
		assert.Len(t, recorder.sent, 1)
	})

	t.Run("should clear a known leader", func(t *testing.T) {
		// Arrange
		var sut, _ = newElect(205)
		require.NoError(t, sut.onLeader(330))

		// Act
		sut.clearLeader()

		// Assert
		assert.Equal(t, noLeader, sut.leader())
	})

	t.Run("should surface send failures to the caller", func(t *testing.T) {
		// Arrange
		var (
			recorder = &sendRecorder{err: errors.New("connection refused")}
			opts     = defaultOptions()
		)
		opts.electionCooldown = 0
		var sut = newElection(205, recorder, opts)

		// Act & Assert
		assert.Error(t, sut.initiate())
		assert.Error(t, sut.onElection(330))
	})
}
