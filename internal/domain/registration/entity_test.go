package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdportal/pd-portal/internal/domain/session"
	"github.com/pdportal/pd-portal/internal/domain/shared"
)

func capacity(n int) *int { return &n }

func TestAdmit(t *testing.T) {
	published := &session.Session{Status: session.StatusPublished, Capacity: capacity(2)}

	assert.NoError(t, Admit(published, false, 0))
	assert.NoError(t, Admit(published, false, 1))

	err := Admit(published, false, 2)
	assert.ErrorIs(t, err, shared.ErrSessionFull)
	assert.True(t, shared.IsCapacityExceeded(err))

	err = Admit(published, true, 0)
	assert.ErrorIs(t, err, shared.ErrAlreadyRegistered)
	assert.True(t, shared.IsAlreadyExists(err))

	draft := &session.Session{Status: session.StatusDraft}
	assert.ErrorIs(t, Admit(draft, false, 0), shared.ErrInvalidState)

	assert.True(t, shared.IsNotFound(Admit(nil, false, 0)))
}

func TestAdmit_DuplicateAndFullAreDistinguishable(t *testing.T) {
	full := &session.Session{Status: session.StatusPublished, Capacity: capacity(1)}

	dup := Admit(full, true, 1)
	noSeat := Admit(full, false, 1)

	assert.NotEqual(t, dup.Error(), noSeat.Error())
	assert.False(t, shared.IsCapacityExceeded(dup))
	assert.False(t, shared.IsAlreadyExists(noSeat))
}

func TestAdmit_UnlimitedCapacity(t *testing.T) {
	s := &session.Session{Status: session.StatusPublished}
	assert.NoError(t, Admit(s, false, 500))
}

func TestRegistration_Lifecycle(t *testing.T) {
	r := New("u1", "s1")
	assert.Equal(t, StatusRegistered, r.Status)

	require.NoError(t, r.Cancel())
	assert.Equal(t, StatusCancelled, r.Status)
	assert.True(t, shared.IsNotFound(r.Cancel()))

	again := New("u1", "s1")
	require.NoError(t, again.MarkAttendance(true))
	assert.Equal(t, StatusAttended, again.Status)
	assert.ErrorIs(t, again.MarkAttendance(false), shared.ErrStateTransition)

	noShow := New("u2", "s1")
	require.NoError(t, noShow.MarkAttendance(false))
	assert.Equal(t, StatusNoShow, noShow.Status)
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusRegistered.IsActive())
	assert.False(t, StatusAttended.IsActive())
	assert.True(t, StatusAttended.CountsTowardSessions())
	assert.False(t, StatusCancelled.CountsTowardSessions())
	assert.False(t, Status("waitlisted").IsValid())
}
