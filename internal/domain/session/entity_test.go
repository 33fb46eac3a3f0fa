package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdportal/pd-portal/internal/domain/shared"
)

func intPtr(v int) *int { return &v }

func validParams() NewSessionParams {
	return NewSessionParams{
		Title:       "Formative assessment",
		SessionDate: time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC),
		StartTime:   "15:00",
		EndTime:     "16:30",
		Capacity:    intPtr(20),
	}
}

func TestNewSession(t *testing.T) {
	s, err := NewSession(validParams())
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, s.Status)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), s.SessionDate)
	assert.True(t, s.ID.IsValid())

	p := validParams()
	p.Publish = true
	s, err = NewSession(p)
	require.NoError(t, err)
	assert.True(t, s.IsPublished())
}

func TestNewSession_Validation(t *testing.T) {
	missing := validParams()
	missing.Title = "  "
	_, err := NewSession(missing)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	badClock := validParams()
	badClock.StartTime = "3pm"
	_, err = NewSession(badClock)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)

	reversed := validParams()
	reversed.EndTime = "14:00"
	_, err = NewSession(reversed)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	zeroCap := validParams()
	zeroCap.Capacity = intPtr(0)
	_, err = NewSession(zeroCap)
	assert.ErrorIs(t, err, shared.ErrInvalidCapacity)
}

func TestSession_Capacity(t *testing.T) {
	s := &Session{Capacity: intPtr(2)}
	assert.True(t, s.HasCapacityFor(0))
	assert.True(t, s.HasCapacityFor(1))
	assert.False(t, s.HasCapacityFor(2))
	assert.Equal(t, 0, s.SeatsLeft(3))

	unlimited := &Session{}
	assert.True(t, unlimited.HasCapacityFor(10_000))
	assert.Equal(t, -1, unlimited.SeatsLeft(5))
}

func TestSession_ChangeStatus(t *testing.T) {
	s := &Session{Status: StatusDraft}

	require.NoError(t, s.ChangeStatus(StatusPublished))
	require.NoError(t, s.ChangeStatus(StatusFull))
	require.NoError(t, s.ChangeStatus(StatusPublished))
	require.NoError(t, s.ChangeStatus(StatusCompleted))

	err := s.ChangeStatus(StatusPublished)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
	assert.ErrorIs(t, err, shared.ErrSessionClosed)
	assert.Equal(t, StatusCompleted, s.Status)

	draft := &Session{Status: StatusDraft}
	err = draft.ChangeStatus(StatusFull)
	assert.ErrorIs(t, err, shared.ErrInvalidSessionStatus)

	err = s.ChangeStatus("archived")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestNewView(t *testing.T) {
	v := NewView(Session{Capacity: intPtr(3)}, 1, true)
	assert.Equal(t, 1, v.RegistrationCount)
	assert.Equal(t, 2, v.SeatsLeft)
	assert.True(t, v.UserRegistered)
}
