package services

import (
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rohits-web03/vaultbox/internal/config"
	"github.com/rohits-web03/vaultbox/internal/encryption"
	"github.com/rohits-web03/vaultbox/internal/models"
	"github.com/rohits-web03/vaultbox/internal/repositories"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type testEnv struct {
	root      string
	storage   config.StorageConfig
	files     *repositories.FileRepository
	users     *repositories.UserRepository
	pipeline  *encryption.Pipeline
	upload    *UploadService
	retrieval *RetrievalService
	deletion  *DeletionService
	alice     *models.User
	bob       *models.User
}

func newTestEnv(t *testing.T, streamThreshold int64) *testEnv {
	t.Helper()

	root := t.TempDir()
	storage := config.StorageConfig{Root: root, MaxUploadMB: 50, StreamThresholdMB: 5, MaxConcurrentCrypto: 4}
	require.NoError(t, os.MkdirAll(storage.TempDir(), 0o700))

	db, err := repositories.ConnectDatabase("sqlite", filepath.Join(t.TempDir(), "meta.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	var key encryption.Key
	_, err = rand.Read(key[:])
	require.NoError(t, err)
	codec, err := encryption.NewCodec(key)
	require.NoError(t, err)
	pipeline := encryption.NewPipeline(codec, encryption.PipelineOptions{StreamThreshold: streamThreshold, MaxConcurrent: 4})

	files := repositories.NewFileRepository(db)
	users := repositories.NewUserRepository(db)
	log := testLogger()

	env := &testEnv{
		root:      root,
		storage:   storage,
		files:     files,
		users:     users,
		pipeline:  pipeline,
		upload:    NewUploadService(storage, pipeline, files, nil, log),
		retrieval: NewRetrievalService(files, pipeline, log),
		deletion:  NewDeletionService(files, nil, log),
	}

	ctx := context.Background()
	env.alice = &models.User{Name: "Alice", Email: "alice@example.com"}
	env.bob = &models.User{Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, users.Create(ctx, env.alice))
	require.NoError(t, users.Create(ctx, env.bob))
	return env
}

// spool writes data where the upload handler would leave it.
func (e *testEnv) spool(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(e.storage.TempDir(), "upload-*")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

// blobs lists the ciphertext files under the storage root.
func (e *testEnv) blobs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.root)
	require.NoError(t, err)
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	return out
}

func (e *testEnv) tempFiles(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(e.storage.TempDir())
	require.NoError(t, err)
	return entries
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

type fakeMirror struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{objects: map[string][]byte{}}
}

func (m *fakeMirror) Put(_ context.Context, key, path string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *fakeMirror) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *fakeMirror) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
