package blob

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	fsStore, err := Open(ctx, Config{FSRoot: filepath.Join(t.TempDir(), "artifacts")})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, fsStore.Driver())

	mem, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, mem.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	require.Error(t, err, "bucket is required")

	_, err = Open(ctx, Config{Driver: "tape"})
	require.ErrorContains(t, err, `unknown blob driver "tape"`)
}

// Every driver honours the same write-once contract.
func TestDriversShareContract(t *testing.T) {
	ctx := context.Background()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	for _, store := range []Store{fsStore, NewMemory(), NewMockS3ForTests()} {
		t.Run(string(store.Driver()), func(t *testing.T) {
			key := "exports/e1/profile-p1.csv"
			info, err := store.Put(ctx, key, strings.NewReader("a,b\n"), PutOptions{ContentType: "text/csv"})
			require.NoError(t, err)
			assert.Equal(t, key, info.Key)
			assert.EqualValues(t, 4, info.Size)

			_, err = store.Put(ctx, key, strings.NewReader("x"), PutOptions{})
			assert.True(t, errors.Is(err, ErrExists), "second put: %v", err)

			_, rc, err := store.Get(ctx, key)
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, rc.Close())
			require.NoError(t, err)
			assert.Equal(t, "a,b\n", string(body))

			_, err = store.Put(ctx, "exports/e1/profile-p1.json", strings.NewReader("{}"), PutOptions{})
			require.NoError(t, err)
			_, err = store.Put(ctx, "other/x", strings.NewReader("x"), PutOptions{})
			require.NoError(t, err)
			list, err := store.List(ctx, "exports/e1/")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "exports/e1/profile-p1.csv", list[0].Key)

			existed, err := store.Delete(ctx, key)
			require.NoError(t, err)
			assert.True(t, existed)
			_, err = store.Head(ctx, key)
			assert.True(t, errors.Is(err, ErrNotFound), "head after delete: %v", err)
		})
	}
}
