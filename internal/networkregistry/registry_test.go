package networkregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexersByStakedTokensAppliesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"indexers":[
			{"id":"0x0000000000000000000000000000000000000001","url":"https://a","defaultDisplayName":"a"},
			{"id":"0x0000000000000000000000000000000000000002","url":"https://b","defaultDisplayName":"b"}
		]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	indexers, err := c.IndexersByStakedTokens(context.Background(), 100, 1)
	require.NoError(t, err)
	assert.Len(t, indexers, 1)
}

func TestIndexerByAddressNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"indexers":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	var addr [20]byte
	_, err := c.IndexerByAddress(context.Background(), addr)
	assert.ErrorContains(t, err, "no indexer found")
}

func TestQueryPropagatesGraphqlErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.IndexersByAllocations(context.Background())
	assert.ErrorContains(t, err, "graphql errors")
}
