package services

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rohits-web03/vaultbox/internal/config"
	"github.com/rohits-web03/vaultbox/internal/models"
	"github.com/rohits-web03/vaultbox/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest_SmallTextFileRoundTrip(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	ctx := context.Background()
	plain := []byte("hello vault")[:10]
	tmp := env.spool(t, plain)

	rec, err := env.upload.Ingest(ctx, env.alice.ID, UploadedFile{
		TempPath:     tmp,
		MimeType:     "text/plain",
		OriginalName: "notes.txt",
		Size:         int64(len(plain)),
	})
	require.NoError(t, err)

	assert.True(t, rec.Encrypted)
	assert.Len(t, rec.IV, 32)
	assert.Equal(t, "txt", rec.FileType)
	assert.Equal(t, "0.00", rec.SizeMB)
	assert.Equal(t, int64(10), rec.SizeBytes)
	assert.True(t, strings.HasPrefix(rec.StoredName, "enc-"))
	assert.True(t, strings.HasSuffix(rec.StoredName, ".txt"))
	assert.Equal(t, filepath.Join(env.root, rec.StoredName), rec.StoragePath)
	assert.Equal(t, "/files/view/"+itoa(rec.ID), Summarize(*rec).DownloadURL)

	info, err := os.Stat(rec.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, int64(16), info.Size())
	assert.Zero(t, info.Size()%16)

	_, err = os.Stat(tmp)
	assert.True(t, os.IsNotExist(err), "plaintext temp file must be removed")

	d, err := env.retrieval.Retrieve(ctx, env.alice.ID, rec.ID)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	require.NoError(t, env.retrieval.Deliver(ctx, d, w))

	assert.Equal(t, string(plain), w.Body.String())
	assert.Equal(t, "10", w.Header().Get("Content-Length"))
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment"))
}

func TestIngest_SamePlaintextGetsFreshIV(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	ctx := context.Background()
	plain := []byte("identical content")

	var recs []*models.FileRecord
	for range 2 {
		rec, err := env.upload.Ingest(ctx, env.alice.ID, UploadedFile{
			TempPath: env.spool(t, plain), MimeType: "text/plain", OriginalName: "same.txt", Size: int64(len(plain)),
		})
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	assert.NotEqual(t, recs[0].IV, recs[1].IV)
	assert.NotEqual(t, recs[0].StoredName, recs[1].StoredName)

	a, err := os.ReadFile(recs[0].StoragePath)
	require.NoError(t, err)
	b, err := os.ReadFile(recs[1].StoragePath)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestIngest_RejectsUnlistedType(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	tmp := env.spool(t, []byte("\x7fELF..."))

	_, err := env.upload.Ingest(context.Background(), env.alice.ID, UploadedFile{
		TempPath: tmp, MimeType: "application/x-executable", OriginalName: "a.out", Size: 7,
	})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	assert.Empty(t, env.blobs(t))
	assert.Empty(t, env.tempFiles(t))
	files, err := env.files.ListByOwner(context.Background(), env.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestIngest_MIMEParametersIgnored(t *testing.T) {
	assert.True(t, IsAllowedMIME("text/plain; charset=utf-8"))
	assert.True(t, IsAllowedMIME("IMAGE/PNG"))
	assert.False(t, IsAllowedMIME("image/svg+xml"))
	assert.False(t, IsAllowedMIME(""))
}

func TestIngest_RejectsOversizedUpload(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	tmp := env.spool(t, nil)
	// Sparse file, no need to write 51MB of data.
	require.NoError(t, os.Truncate(tmp, 51<<20))

	_, err := env.upload.Ingest(context.Background(), env.alice.ID, UploadedFile{
		TempPath: tmp, MimeType: "application/pdf", OriginalName: "big.pdf", Size: 51 << 20,
	})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Equal(t, "File size exceeds the limit of 50MB", PublicMessage(err, ""))

	assert.Empty(t, env.blobs(t))
	assert.Empty(t, env.tempFiles(t))
	files, err := env.files.ListByOwner(context.Background(), env.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestIngest_SizeCeilingIsInclusive(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	storage := config.StorageConfig{Root: env.root, MaxUploadMB: 1}
	svc := NewUploadService(storage, env.pipeline, env.files, nil, testLogger())
	ctx := context.Background()

	_, err := svc.Ingest(ctx, env.alice.ID, UploadedFile{
		TempPath: env.spool(t, randomBytes(t, 1<<20)), MimeType: "application/zip", OriginalName: "ok.zip", Size: 1 << 20,
	})
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, env.alice.ID, UploadedFile{
		TempPath: env.spool(t, randomBytes(t, 1<<20+1)), MimeType: "application/zip", OriginalName: "no.zip", Size: 1<<20 + 1,
	})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestIngest_UnderstatedSizeStillChecked(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	svc := NewUploadService(config.StorageConfig{Root: env.root, MaxUploadMB: 1}, env.pipeline, env.files, nil, testLogger())

	_, err := svc.Ingest(context.Background(), env.alice.ID, UploadedFile{
		TempPath: env.spool(t, randomBytes(t, 2<<20)), MimeType: "application/zip", OriginalName: "liar.zip", Size: 10,
	})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

// partialEncrypter writes some ciphertext and then fails, like a disk
// filling up mid-stream.
type partialEncrypter struct{}

var errDiskFull = errors.New("no space left on device")

func (partialEncrypter) EncryptFile(_ context.Context, _, dstPath string, _ []byte) error {
	if err := os.WriteFile(dstPath, []byte("half a block"), 0o600); err != nil {
		return err
	}
	return errDiskFull
}

func TestIngest_EncryptionFailureLeavesNothing(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	svc := NewUploadService(env.storage, partialEncrypter{}, env.files, nil, testLogger())
	tmp := env.spool(t, []byte("secret plaintext"))

	_, err := svc.Ingest(context.Background(), env.alice.ID, UploadedFile{
		TempPath: tmp, MimeType: "text/plain", OriginalName: "secret.txt", Size: 16,
	})
	assert.ErrorIs(t, err, ErrEncryptionFailed)
	assert.ErrorIs(t, err, errDiskFull)

	assert.Empty(t, env.blobs(t), "partial ciphertext must be removed")
	assert.Empty(t, env.tempFiles(t), "plaintext must be removed")
	files, err := env.files.ListByOwner(context.Background(), env.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

type emptyEncrypter struct{}

func (emptyEncrypter) EncryptFile(_ context.Context, _, dstPath string, _ []byte) error {
	return os.WriteFile(dstPath, nil, 0o600)
}

func TestIngest_EmptyCiphertextIsFailure(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	svc := NewUploadService(env.storage, emptyEncrypter{}, env.files, nil, testLogger())

	_, err := svc.Ingest(context.Background(), env.alice.ID, UploadedFile{
		TempPath: env.spool(t, []byte("x")), MimeType: "text/plain", OriginalName: "x.txt", Size: 1,
	})
	assert.ErrorIs(t, err, ErrEncryptionFailed)
	assert.Empty(t, env.blobs(t))
	assert.Empty(t, env.tempFiles(t))
}

type failingCreateStore struct {
	repositories.FileStore
}

var errInsert = errors.New("insert failed")

func (failingCreateStore) Create(context.Context, *models.FileRecord) error {
	return errInsert
}

func TestIngest_StoreFailureRemovesCiphertext(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	svc := NewUploadService(env.storage, env.pipeline, failingCreateStore{env.files}, nil, testLogger())

	_, err := svc.Ingest(context.Background(), env.alice.ID, UploadedFile{
		TempPath: env.spool(t, []byte("payload")), MimeType: "text/csv", OriginalName: "data.csv", Size: 7,
	})
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, errInsert)
	assert.Empty(t, env.blobs(t))
	assert.Empty(t, env.tempFiles(t))
}

func TestIngest_MirrorsCiphertextOnly(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	mirror := newFakeMirror()
	svc := NewUploadService(env.storage, env.pipeline, env.files, mirror, testLogger())
	plain := []byte("mirror me please")

	rec, err := svc.Ingest(context.Background(), env.alice.ID, UploadedFile{
		TempPath: env.spool(t, plain), MimeType: "text/plain", OriginalName: "m.txt", Size: int64(len(plain)),
	})
	require.NoError(t, err)

	blob, err := os.ReadFile(rec.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, blob, mirror.objects["files/"+rec.StoredName])
	assert.NotContains(t, string(mirror.objects["files/"+rec.StoredName]), string(plain))
}

func TestIngest_MirrorFailureDoesNotFailUpload(t *testing.T) {
	env := newTestEnv(t, 5<<20)
	mirror := newFakeMirror()
	mirror.putErr = errors.New("bucket unreachable")
	svc := NewUploadService(env.storage, env.pipeline, env.files, mirror, testLogger())

	rec, err := svc.Ingest(context.Background(), env.alice.ID, UploadedFile{
		TempPath: env.spool(t, []byte("data")), MimeType: "text/plain", OriginalName: "d.txt", Size: 4,
	})
	require.NoError(t, err)
	assert.FileExists(t, rec.StoragePath)
}

func TestStoredName(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	a := StoredName("Report.PDF", at)
	b := StoredName("Report.PDF", at)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "enc-1700000000123-"))
	assert.True(t, strings.HasSuffix(a, ".pdf"))

	bare := StoredName("Makefile", at)
	assert.False(t, strings.Contains(strings.TrimPrefix(bare, "enc-1700000000123-"), "."))
}
