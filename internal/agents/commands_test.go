package agents

import (
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandTexts(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Text
	}
	return out
}

func TestEnqueue_PreservesOrder(t *testing.T) {
	r, _ := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	for _, text := range []string{"c1", "c2", "c3"} {
		_, err := r.Enqueue(a.ID, text, "")
		require.NoError(t, err)
	}

	pending, err := r.PendingCommands(a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"}, commandTexts(pending))

	// Polling is side-effect free.
	again, err := r.PendingCommands(a.ID)
	require.NoError(t, err)
	assert.Equal(t, pending, again)
}

func TestEnqueue_Errors(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.Enqueue("missing", "whoami", "")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	a, err := r.Register()
	require.NoError(t, err)
	_, err = r.Enqueue(a.ID, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestAck_AllPendingIsIdempotent(t *testing.T) {
	r, clock := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	id1, err := r.Enqueue(a.ID, "c1", "")
	require.NoError(t, err)
	id2, err := r.Enqueue(a.ID, "c2", "")
	require.NoError(t, err)

	clock.Advance(time.Second)
	acked, err := r.Ack(a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, acked)

	for _, id := range []string{id1, id2} {
		cmd, err := r.Command(a.ID, id)
		require.NoError(t, err)
		assert.Equal(t, CommandStatusCompleted, cmd.Status)
		require.NotNil(t, cmd.CompletedAt)
		assert.Equal(t, clock.Now(), *cmd.CompletedAt)
	}

	before, err := r.Commands(a.ID)
	require.NoError(t, err)

	clock.Advance(time.Second)
	acked, err = r.Ack(a.ID, []string{})
	require.NoError(t, err)
	assert.Equal(t, 0, acked)

	after, err := r.Commands(a.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAck_TargetedIDs(t *testing.T) {
	r, _ := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	id1, _ := r.Enqueue(a.ID, "c1", "")
	id2, _ := r.Enqueue(a.ID, "c2", "")
	id3, _ := r.Enqueue(a.ID, "c3", "")

	acked, err := r.Ack(a.ID, []string{id2, "unknown-id"})
	require.NoError(t, err)
	assert.Equal(t, 1, acked)

	pending, err := r.PendingCommands(a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, id3, pending[1].ID)

	// Acking an already completed id is a no-op.
	acked, err = r.Ack(a.ID, []string{id2})
	require.NoError(t, err)
	assert.Equal(t, 0, acked)

	_, err = r.Ack("missing", nil)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestReportResult(t *testing.T) {
	r, _ := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	id, err := r.Enqueue(a.ID, "whoami", "")
	require.NoError(t, err)

	found, err := r.ReportResult(a.ID, id, "student\n", "", 0)
	require.NoError(t, err)
	assert.True(t, found)

	cmd, err := r.Command(a.ID, id)
	require.NoError(t, err)
	assert.Equal(t, CommandStatusCompleted, cmd.Status)
	assert.Equal(t, "student\n", cmd.Stdout)
	require.NotNil(t, cmd.ExitCode)
	assert.Equal(t, 0, *cmd.ExitCode)

	// A resend overwrites the earlier result.
	found, err = r.ReportResult(a.ID, id, "", "boom", 2)
	require.NoError(t, err)
	assert.True(t, found)

	cmd, err = r.Command(a.ID, id)
	require.NoError(t, err)
	assert.Equal(t, "", cmd.Stdout)
	assert.Equal(t, "boom", cmd.Stderr)
	assert.Equal(t, 2, *cmd.ExitCode)

	pending, err := r.PendingCommands(a.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReportResult_AfterAckStillAttachesOutput(t *testing.T) {
	r, _ := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	id, err := r.Enqueue(a.ID, "hostname", "")
	require.NoError(t, err)
	_, err = r.Ack(a.ID, nil)
	require.NoError(t, err)

	found, err := r.ReportResult(a.ID, id, "lab-pc-07", "", 0)
	require.NoError(t, err)
	assert.True(t, found)

	cmd, err := r.Command(a.ID, id)
	require.NoError(t, err)
	assert.Equal(t, "lab-pc-07", cmd.Stdout)
}

func TestReportResult_UnknownCommandIsNotAnError(t *testing.T) {
	r, _ := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	found, err := r.ReportResult(a.ID, "lost-in-restart", "out", "", 0)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = r.ReportResult("missing", "x", "", "", 0)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestCommand_NotFound(t *testing.T) {
	r, _ := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	_, err = r.Command(a.ID, "nope")
	assert.ErrorIs(t, err, ErrCommandNotFound)

	_, err = r.Command("missing", "nope")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestCommands_ReturnedCopiesAreDetached(t *testing.T) {
	r, _ := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	id, err := r.Enqueue(a.ID, "dir", "")
	require.NoError(t, err)
	_, err = r.ReportResult(a.ID, id, "x", "", 1)
	require.NoError(t, err)

	cmds, err := r.Commands(a.ID)
	require.NoError(t, err)
	*cmds[0].ExitCode = 99
	cmds[0].Stdout = "mutated"

	cmd, err := r.Command(a.ID, id)
	require.NoError(t, err)
	assert.Equal(t, 1, *cmd.ExitCode)
	assert.Equal(t, "x", cmd.Stdout)
}

func TestConcurrentReportsForSameAgent(t *testing.T) {
	r, _ := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	ids := make([]string, 20)
	for i := range ids {
		ids[i], err = r.Enqueue(a.ID, "echo", "")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, err := r.ReportResult(a.ID, id, "ok", "", i)
			assert.NoError(t, err)
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		cmd, err := r.Command(a.ID, id)
		require.NoError(t, err)
		assert.Equal(t, CommandStatusCompleted, cmd.Status)
		assert.Equal(t, i, *cmd.ExitCode)
	}
}

func TestNotifications_ConsumeOnRead(t *testing.T) {
	r, clock := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	before := clock.Now()
	clock.Advance(time.Second)

	_, err = r.PostNotification(a.ID, "hi")
	require.NoError(t, err)

	got, err := r.ConsumeNotifications(a.ID, mo.Some(before))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Message)

	got, err = r.ConsumeNotifications(a.ID, mo.Some(before))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNotifications_SinceFiltersAndKeepsOlder(t *testing.T) {
	r, clock := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	_, err = r.PostNotification(a.ID, "old")
	require.NoError(t, err)
	cursor := clock.Now()
	clock.Advance(time.Second)
	_, err = r.PostNotification(a.ID, "new")
	require.NoError(t, err)

	got, err := r.ConsumeNotifications(a.ID, mo.Some(cursor))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Message)

	// The older one is still queued and comes back without a cursor.
	got, err = r.ConsumeNotifications(a.ID, mo.None[time.Time]())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].Message)
}

func TestNotifications_DuplicateTextAndTimestampRemovedByID(t *testing.T) {
	r, clock := newTestRegistry()
	a, err := r.Register()
	require.NoError(t, err)

	cursor := clock.Now()
	clock.Advance(time.Second)
	first, err := r.PostNotification(a.ID, "same")
	require.NoError(t, err)
	second, err := r.PostNotification(a.ID, "same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	got, err := r.ConsumeNotifications(a.ID, mo.Some(cursor))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0].ID)
	assert.Equal(t, second, got[1].ID)
}

func TestNotifications_Errors(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.PostNotification("missing", "hi")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	a, err := r.Register()
	require.NoError(t, err)
	_, err = r.PostNotification(a.ID, "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = r.ConsumeNotifications("missing", mo.None[time.Time]())
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
