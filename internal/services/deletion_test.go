package services

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rohits-web03/vaultbox/internal/models"
	"github.com/rohits-web03/vaultbox/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelete_RemovesBlobAndRecord(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	ctx := context.Background()
	rec := ingest(t, env, env.alice, "bye.txt", "text/plain", []byte("goodbye"))

	before := time.Now().UTC().Add(-time.Second)
	conf, err := env.deletion.Delete(ctx, env.alice.ID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, conf.FileID)
	assert.Equal(t, "bye.txt", conf.OriginalName)
	assert.True(t, conf.DeletedAt.After(before))

	_, err = os.Stat(rec.StoragePath)
	assert.True(t, os.IsNotExist(err))
	_, err = env.files.FindByIDAndOwner(ctx, rec.ID, env.alice.ID)
	assert.Error(t, err)

	_, err = env.deletion.Delete(ctx, env.alice.ID, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_OtherOwnerIsNotFound(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	ctx := context.Background()
	rec := ingest(t, env, env.alice, "mine.txt", "text/plain", []byte("mine"))

	_, err := env.deletion.Delete(ctx, env.bob.ID, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.FileExists(t, rec.StoragePath)

	_, err = env.retrieval.Retrieve(ctx, env.alice.ID, rec.ID)
	assert.NoError(t, err)
}

func TestDelete_BlobRemovalFailureKeepsRecord(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	ctx := context.Background()
	plain := []byte("still here")
	rec := ingest(t, env, env.alice, "keep.txt", "text/plain", plain)

	errPerm := errors.New("permission denied")
	env.deletion.remove = func(string) error { return errPerm }

	_, err := env.deletion.Delete(ctx, env.alice.ID, rec.ID)
	assert.ErrorIs(t, err, ErrDeletionFailed)
	assert.ErrorIs(t, err, errPerm)

	d, err := env.retrieval.Retrieve(ctx, env.alice.ID, rec.ID)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	require.NoError(t, env.retrieval.Deliver(ctx, d, w))
	assert.Equal(t, string(plain), w.Body.String())
}

func TestDelete_AlreadyMissingBlobStillDeletesRecord(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	ctx := context.Background()
	rec := ingest(t, env, env.alice, "orphan.txt", "text/plain", []byte("orphan"))
	require.NoError(t, os.Remove(rec.StoragePath))

	_, err := env.deletion.Delete(ctx, env.alice.ID, rec.ID)
	require.NoError(t, err)

	files, err := env.files.ListByOwner(ctx, env.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDelete_RemovesMirrorCopy(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	ctx := context.Background()
	mirror := newFakeMirror()
	upload := NewUploadService(env.storage, env.pipeline, env.files, mirror, testLogger())
	deletion := NewDeletionService(env.files, mirror, testLogger())

	rec, err := upload.Ingest(ctx, env.alice.ID, UploadedFile{
		TempPath: env.spool(t, []byte("data")), MimeType: "text/plain", OriginalName: "m.txt", Size: 4,
	})
	require.NoError(t, err)
	require.Contains(t, mirror.objects, "files/"+rec.StoredName)

	_, err = deletion.Delete(ctx, env.alice.ID, rec.ID)
	require.NoError(t, err)
	assert.NotContains(t, mirror.objects, "files/"+rec.StoredName)
}

// lostRaceStore behaves as if another request deleted the same row between
// this request's lookup and its delete.
type lostRaceStore struct {
	repositories.FileStore
}

func (s lostRaceStore) WithTx(ctx context.Context, fn func(tx repositories.FileStore) error) error {
	return s.FileStore.WithTx(ctx, func(tx repositories.FileStore) error {
		return fn(lostRaceTx{tx})
	})
}

type lostRaceTx struct {
	repositories.FileStore
}

func (tx lostRaceTx) Delete(ctx context.Context, rec *models.FileRecord) error {
	if err := tx.FileStore.Delete(ctx, rec); err != nil {
		return err
	}
	return tx.FileStore.Delete(ctx, rec)
}

func TestDelete_ConcurrentDeleteLoserIsNotFound(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	ctx := context.Background()
	rec := ingest(t, env, env.alice, "twice.txt", "text/plain", []byte("twice"))

	loser := NewDeletionService(lostRaceStore{env.files}, nil, testLogger())
	_, err := loser.Delete(ctx, env.alice.ID, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStore)
}
