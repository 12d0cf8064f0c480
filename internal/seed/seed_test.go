package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tenniscourts/internal/database"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
courts:
  - id: 1
    name: "Roland Garros - Court Philippe-Chatrier"
  - id: 2
    name: "Wimbledon - Centre Court"
guests:
  - id: 1
    name: "Roger Federer"
  - id: 2
    name: "Rafael Nadal"
`

func newDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, f.Courts, 2)
	require.Len(t, f.Guests, 2)
	assert.Equal(t, "Wimbledon - Centre Court", f.Courts[1].Name)
	assert.Equal(t, int64(2), f.Guests[1].ID)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing id":      "courts:\n  - name: A\n",
		"empty name":      "guests:\n  - id: 1\n    name: \"  \"\n",
		"duplicate court": "courts:\n  - id: 1\n    name: A\n  - id: 1\n    name: B\n",
		"bad yaml":        "courts: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	res, err := Apply(ctx, db, f, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{CourtsCreated: 2, GuestsCreated: 2}, res)

	court, err := db.GetTennisCourt(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, court)
	assert.Equal(t, "Wimbledon - Centre Court", court.Name)

	res, err = Apply(ctx, db, f, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 4}, res)
}

func TestLoadAndApply(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	res, err := LoadAndApply(ctx, db, "", nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	res, err = LoadAndApply(ctx, db, path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.GuestsCreated)

	guest, err := db.GetGuest(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, guest)
	assert.Equal(t, "Roger Federer", guest.Name)

	_, err = LoadAndApply(ctx, db, filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_ShippedSeed(t *testing.T) {
	f, err := Load(filepath.Join("..", "..", "configs", "seed.yaml"))
	require.NoError(t, err)
	assert.Len(t, f.Courts, 3)
	assert.Len(t, f.Guests, 2)
}
