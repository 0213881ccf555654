package authority

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavetrack/field-sync/internal/adapter"
	"github.com/pavetrack/field-sync/internal/config"
	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/models"
)

// The handler is exercised end to end through the real HTTP transport to
// pin down the wire contract from both sides.
func TestHandler_PushPullRoundTrip(t *testing.T) {
	srv := httptest.NewServer(NewHandler(New(), logger.Nop()).Init())
	t.Cleanup(srv.Close)

	tr, err := adapter.NewHTTPTransport(config.Remote{
		BaseURL:        srv.URL,
		RequestTimeout: config.Duration(5 * time.Second),
	}, logger.Nop())
	require.NoError(t, err)

	ctx := context.Background()

	results, err := tr.Push(ctx, models.PushRequest{Items: []models.PushItem{
		{RecordID: "r1", EntityType: "project", EncodedPayload: []byte("blob-1"), BaseVersion: 0, Op: models.OpCreate},
		{RecordID: "r2", EntityType: "project", EncodedPayload: []byte("blob-2"), BaseVersion: 0, Op: models.OpCreate},
	}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Applied)
	assert.True(t, results[1].Applied)

	page, err := tr.Pull(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Changes, 2)
	assert.Equal(t, "r1", page.Changes[0].RecordID)
	assert.Equal(t, []byte("blob-1"), page.Changes[0].EncodedPayload)
	assert.Equal(t, int64(1), page.Changes[0].RemoteVersion)

	// Caught up after consuming the cursor.
	page, err = tr.Pull(ctx, page.Cursor, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Changes)
}

func TestHandler_PushConflictTravelsInResult(t *testing.T) {
	a := New()
	a.ApplyPush([]models.PushItem{
		{RecordID: "r1", EncodedPayload: []byte("theirs"), BaseVersion: 0, Op: models.OpCreate},
	})

	srv := httptest.NewServer(NewHandler(a, logger.Nop()).Init())
	t.Cleanup(srv.Close)

	tr, err := adapter.NewHTTPTransport(config.Remote{BaseURL: srv.URL}, logger.Nop())
	require.NoError(t, err)

	results, err := tr.Push(context.Background(), models.PushRequest{Items: []models.PushItem{
		{RecordID: "r1", EncodedPayload: []byte("ours"), BaseVersion: 0, Op: models.OpUpdate},
	}})
	require.NoError(t, err, "per-item conflicts are results, not transport errors")
	require.Len(t, results, 1)

	assert.True(t, results[0].Conflict)
	assert.Equal(t, int64(1), results[0].CurrentRemote)
	assert.Equal(t, []byte("theirs"), results[0].CurrentPayload)
}

func TestHandler_PushRejectsBadBody(t *testing.T) {
	srv := httptest.NewServer(NewHandler(New(), logger.Nop()).Init())
	t.Cleanup(srv.Close)

	tr, err := adapter.NewHTTPTransport(config.Remote{BaseURL: srv.URL}, logger.Nop())
	require.NoError(t, err)

	// An empty batch is a client bug, mapped to the permanent class.
	_, err = tr.Push(context.Background(), models.PushRequest{})
	assert.ErrorIs(t, err, adapter.ErrPermanent)
}
