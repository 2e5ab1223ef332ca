package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graphix-core/graphix-core/internal/types"
)

// openTestStore opens a Store against GRAPHIX_TEST_DATABASE_URL, skipping
// the test when it isn't set: these tests exercise real Postgres
// transactions and constraints and can't run against a fake.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("GRAPHIX_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GRAPHIX_TEST_DATABASE_URL not set, skipping Postgres-backed test")
	}
	st, err := Open(context.Background(), dsn, nil)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testAddress(b byte) types.Address {
	var a types.Address
	a[len(a)-1] = b
	return a
}

func testHash(b byte) types.PoiHash {
	var h types.PoiHash
	h[0] = b
	return h
}

func TestWritePoisRejectsMismatchedBlockPointersInOneBatch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	indexerID, err := st.GetOrInsertIndexer(ctx, testAddress(1), "indexer-1")
	require.NoError(t, err)
	_ = indexerID

	dep := types.SubgraphDeployment("QmWritepathMismatch")
	batch := []PoiWrite{
		{Deployment: dep, IndexerAddr: testAddress(1), Block: types.BlockPointer{Number: 10, Hash: types.BlockHash{1}}, Hash: testHash(1)},
		{Deployment: dep, IndexerAddr: testAddress(1), Block: types.BlockPointer{Number: 11, Hash: types.BlockHash{2}}, Hash: testHash(2)},
	}
	err = st.WritePois(ctx, batch, NotLive)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestWritePoisFailsClosedOnUnknownIndexer(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	dep := types.SubgraphDeployment("QmWritepathUnknown")
	batch := []PoiWrite{
		{Deployment: dep, IndexerAddr: testAddress(99), Block: types.BlockPointer{Number: 1, Hash: types.BlockHash{9}}, Hash: testHash(1)},
	}
	err := st.WritePois(ctx, batch, NotLive)
	require.ErrorIs(t, err, ErrUnknownIndexer)
}

func TestWritePoisEmptyBatchIsNoOp(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.WritePois(context.Background(), nil, Live))
}

// TestWritePoisLiveReplacesExistingLivePoi covers the live-pointer rule:
// at most one LivePoI per (deployment, indexer), and a second Live write
// for the same pair replaces rather than duplicates the row.
func TestWritePoisLiveReplacesExistingLivePoi(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.GetOrInsertIndexer(ctx, testAddress(2), "indexer-2")
	require.NoError(t, err)

	dep := types.SubgraphDeployment("QmWritepathLive")
	first := []PoiWrite{
		{Deployment: dep, IndexerAddr: testAddress(2), Block: types.BlockPointer{Number: 1, Hash: types.BlockHash{1}}, Hash: testHash(1)},
	}
	require.NoError(t, st.WritePois(ctx, first, Live))

	second := []PoiWrite{
		{Deployment: dep, IndexerAddr: testAddress(2), Block: types.BlockPointer{Number: 2, Hash: types.BlockHash{2}}, Hash: testHash(2)},
	}
	require.NoError(t, st.WritePois(ctx, second, Live))

	live, err := st.ListLivePois(ctx, PoiFilter{Deployments: []types.SubgraphDeployment{dep}, Indexers: []types.Address{testAddress(2)}})
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, testHash(2), live[0].Hash)
}

// Repeating the same Live batch must not duplicate live rows: one row per
// distinct (indexer, deployment) regardless of how often the batch lands.
func TestWritePoisIsIdempotentOnRepeatedBatch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.GetOrInsertIndexer(ctx, testAddress(4), "indexer-4")
	require.NoError(t, err)

	dep := types.SubgraphDeployment("QmWritepathIdempotent")
	batch := []PoiWrite{
		{Deployment: dep, IndexerAddr: testAddress(4), Block: types.BlockPointer{Number: 5, Hash: types.BlockHash{5}}, Hash: testHash(5)},
	}
	require.NoError(t, st.WritePois(ctx, batch, Live))
	require.NoError(t, st.WritePois(ctx, batch, Live))

	live, err := st.ListLivePois(ctx, PoiFilter{Deployments: []types.SubgraphDeployment{dep}})
	require.NoError(t, err)
	require.Len(t, live, 1)
}

func TestDeploymentApiVersionsRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.GetOrInsertIndexer(ctx, testAddress(5), "indexer-5")
	require.NoError(t, err)

	dep := types.SubgraphDeployment("QmApiVersions")
	batch := []PoiWrite{
		{Deployment: dep, IndexerAddr: testAddress(5), Block: types.BlockPointer{Number: 1, Hash: types.BlockHash{3}}, Hash: testHash(6)},
	}
	require.NoError(t, st.WritePois(ctx, batch, NotLive))

	require.NoError(t, st.RecordDeploymentApiVersions(ctx, dep, []string{"1.0.0", "1.1.0"}, nil))
	versions, err := st.DeploymentApiVersions(ctx, dep)
	require.NoError(t, err)
	require.Equal(t, []string{"1.0.0", "1.1.0"}, versions)
}

func TestDeleteNetworkCascadesDeployments(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.GetOrInsertIndexer(ctx, testAddress(3), "indexer-3")
	require.NoError(t, err)

	dep := types.SubgraphDeployment("QmWritepathCascade")
	batch := []PoiWrite{
		{Deployment: dep, IndexerAddr: testAddress(3), Block: types.BlockPointer{Number: 1, Hash: types.BlockHash{7}}, Hash: testHash(3)},
	}
	require.NoError(t, st.WritePois(ctx, batch, Live))

	require.NoError(t, st.DeleteNetwork(ctx, "mainnet"))

	live, err := st.ListLivePois(ctx, PoiFilter{Deployments: []types.SubgraphDeployment{dep}})
	require.NoError(t, err)
	require.Empty(t, live)
}

func TestEnqueueDivergenceInvestigationRejectsTooFewPois(t *testing.T) {
	st := openTestStore(t)
	_, err := st.EnqueueDivergenceInvestigation(context.Background(), DivergenceRequest{Pois: []types.PoiHash{testHash(1)}})
	require.ErrorIs(t, err, ErrTooFewPois)
}

func TestAPIKeyLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	key, err := st.CreateAPIKey(ctx, "test key", PermissionReadOnly)
	require.NoError(t, err)
	require.NotEmpty(t, key.FullKey)

	permission, err := st.VerifyAPIKey(ctx, key.FullKey)
	require.NoError(t, err)
	require.Equal(t, PermissionReadOnly, permission)

	require.NoError(t, st.ModifyAPIKey(ctx, key.PublicPrefix, "updated notes", PermissionAdmin))
	permission, err = st.VerifyAPIKey(ctx, key.FullKey)
	require.NoError(t, err)
	require.Equal(t, PermissionAdmin, permission)

	require.NoError(t, st.RevokeAPIKey(ctx, key.PublicPrefix))
	_, err = st.VerifyAPIKey(ctx, key.FullKey)
	require.Error(t, err)
}
