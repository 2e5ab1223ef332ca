package store

import (
	"context"
	"fmt"

	"github.com/graphix-core/graphix-core/internal/consensus"
	"github.com/graphix-core/graphix-core/internal/types"
)

// PoiFilter narrows PoI reads by deployment and/or indexer.
type PoiFilter struct {
	Deployments []types.SubgraphDeployment
	Indexers    []types.Address
}

// IndexerFilter narrows an Indexers query.
type IndexerFilter struct {
	Addresses []types.Address
}

// DeploymentFilter narrows a Deployments query.
type DeploymentFilter struct {
	Cids []types.SubgraphDeployment
}

// PoiRecord is one stored PoI row as read back (append-only history, not
// just the live pointer).
type PoiRecord struct {
	Hash        types.PoiHash            `json:"hash"`
	Deployment  types.SubgraphDeployment `json:"deployment"`
	Indexer     types.Address            `json:"indexer"`
	Block       types.BlockPointer       `json:"block"`
	NetworkName string                   `json:"networkName"`
}

// LivePoisForIndexer loads every LivePoI row belonging to addr.
func (s *Store) LivePoisForIndexer(ctx context.Context, addr types.Address) ([]consensus.LivePoi, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.ipfs_cid, i.address, p.poi
		FROM live_pois lp
		JOIN indexers i ON i.id = lp.indexer_id
		JOIN sg_deployments d ON d.id = lp.sg_deployment_id
		JOIN pois p ON p.id = lp.poi_id
		WHERE i.address = $1
	`, addr[:])
	if err != nil {
		return nil, fmt.Errorf("load live pois for indexer %s: %w", addr, err)
	}
	defer rows.Close()
	return scanLivePois(rows)
}

// LivePoisForDeployments loads every LivePoI row on any of the given
// deployments.
func (s *Store) LivePoisForDeployments(ctx context.Context, cids []types.SubgraphDeployment) ([]consensus.LivePoi, error) {
	if len(cids) == 0 {
		return nil, nil
	}
	strCids := make([]string, len(cids))
	for i, c := range cids {
		strCids[i] = string(c)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT d.ipfs_cid, i.address, p.poi
		FROM live_pois lp
		JOIN indexers i ON i.id = lp.indexer_id
		JOIN sg_deployments d ON d.id = lp.sg_deployment_id
		JOIN pois p ON p.id = lp.poi_id
		WHERE d.ipfs_cid = ANY($1)
	`, strCids)
	if err != nil {
		return nil, fmt.Errorf("load live pois for deployments: %w", err)
	}
	defer rows.Close()
	return scanLivePois(rows)
}

func scanLivePois(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]consensus.LivePoi, error) {
	var out []consensus.LivePoi
	for rows.Next() {
		var (
			cid     string
			addr    []byte
			poiHash []byte
		)
		if err := rows.Scan(&cid, &addr, &poiHash); err != nil {
			return nil, fmt.Errorf("scan live poi row: %w", err)
		}
		var a types.Address
		copy(a[:], addr)
		var h types.PoiHash
		copy(h[:], poiHash)
		out = append(out, consensus.LivePoi{Deployment: types.SubgraphDeployment(cid), Indexer: a, Hash: h})
	}
	return out, rows.Err()
}

// PoiAgreementRatios computes agreement ratios end-to-end for one indexer,
// loading only the rows consensus.Compute needs.
func (s *Store) PoiAgreementRatios(ctx context.Context, addr types.Address) ([]consensus.PoiAgreementRatio, error) {
	forA, err := s.LivePoisForIndexer(ctx, addr)
	if err != nil {
		return nil, err
	}
	if len(forA) == 0 {
		return nil, nil
	}
	deployments := make([]types.SubgraphDeployment, 0, len(forA))
	seen := make(map[types.SubgraphDeployment]bool)
	for _, p := range forA {
		if !seen[p.Deployment] {
			seen[p.Deployment] = true
			deployments = append(deployments, p.Deployment)
		}
	}
	all, err := s.LivePoisForDeployments(ctx, deployments)
	if err != nil {
		return nil, err
	}
	return consensus.Compute(addr, forA, consensus.GroupByDeployment(all)), nil
}

// Poi looks up a single historical PoI by hash, joined to its deployment,
// indexer, and block; the investigator uses it to validate a bisection
// pair. If multiple historical rows share the hash
// (possible since PoIs are append-only), the most recent is returned.
func (s *Store) Poi(ctx context.Context, hash types.PoiHash) (*PoiRecord, error) {
	var (
		cid       string
		addr      []byte
		blockNum  int64
		blockHash []byte
		network   string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT d.ipfs_cid, i.address, b.number, b.hash, n.name
		FROM pois p
		JOIN sg_deployments d ON d.id = p.sg_deployment_id
		JOIN indexers i ON i.id = p.indexer_id
		JOIN blocks b ON b.id = p.block_id
		JOIN networks n ON n.id = b.network_id
		WHERE p.poi = $1
		ORDER BY p.created_at DESC
		LIMIT 1
	`, hash[:]).Scan(&cid, &addr, &blockNum, &blockHash, &network)
	if err != nil {
		return nil, fmt.Errorf("poi %s: %w", hash, ErrNotFound)
	}
	var a types.Address
	copy(a[:], addr)
	return &PoiRecord{
		Hash:        hash,
		Deployment:  types.SubgraphDeployment(cid),
		Indexer:     a,
		Block:       types.BlockPointer{Number: blockNum, Hash: types.BlockHash(blockHash)},
		NetworkName: network,
	}, nil
}

// ListLivePois returns live PoIs matching filter, for the read-only
// projection the (out-of-core) GraphQL layer sits on top of.
func (s *Store) ListLivePois(ctx context.Context, filter PoiFilter) ([]consensus.LivePoi, error) {
	query := `
		SELECT d.ipfs_cid, i.address, p.poi
		FROM live_pois lp
		JOIN indexers i ON i.id = lp.indexer_id
		JOIN sg_deployments d ON d.id = lp.sg_deployment_id
		JOIN pois p ON p.id = lp.poi_id
		WHERE ($1::text[] IS NULL OR d.ipfs_cid = ANY($1))
		  AND ($2::bytea[] IS NULL OR i.address = ANY($2))
	`
	var cids []string
	if len(filter.Deployments) > 0 {
		cids = make([]string, len(filter.Deployments))
		for i, c := range filter.Deployments {
			cids[i] = string(c)
		}
	}
	var addrs [][]byte
	if len(filter.Indexers) > 0 {
		addrs = make([][]byte, len(filter.Indexers))
		for i, a := range filter.Indexers {
			addrs[i] = a[:]
		}
	}
	rows, err := s.pool.Query(ctx, query, cids, addrs)
	if err != nil {
		return nil, fmt.Errorf("list live pois: %w", err)
	}
	defer rows.Close()
	return scanLivePois(rows)
}

// Networks lists all configured networks by name.
func (s *Store) Networks(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM networks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DeleteNetwork deletes a network; FK ON DELETE CASCADE declared in the
// schema removes every Block, Deployment, LivePoI, and PoI row referencing
// it. Indexer rows and their metadata carry no network reference and are
// not deleted.
func (s *Store) DeleteNetwork(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM networks WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete network %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("network %s: %w", name, ErrNotFound)
	}
	return nil
}

// SetDeploymentName upserts the human label for a deployment (0..1 per
// deployment per the data model).
func (s *Store) SetDeploymentName(ctx context.Context, cid types.SubgraphDeployment, name string) error {
	var depID int64
	if err := s.pool.QueryRow(ctx, `SELECT id FROM sg_deployments WHERE ipfs_cid = $1`, string(cid)).Scan(&depID); err != nil {
		return fmt.Errorf("set deployment name: deployment %s: %w", cid, ErrNotFound)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sg_names (sg_deployment_id, name) VALUES ($1, $2)
		ON CONFLICT (sg_deployment_id) DO UPDATE SET name = EXCLUDED.name
	`, depID, name)
	if err != nil {
		return fmt.Errorf("set deployment name for %s: %w", cid, err)
	}
	return nil
}

// RecordIndexerVersion persists a best-effort version observation and
// links it to the indexer.
func (s *Store) RecordIndexerVersion(ctx context.Context, addr types.Address, v types.GraphNodeVersion) error {
	var versionID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO graph_node_collected_versions (version_string, version_commit, error_response)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), NULLIF($3, ''))
		RETURNING id
	`, v.VersionString, v.Commit, v.ErrorResponse).Scan(&versionID)
	if err != nil {
		return fmt.Errorf("record indexer version: %w", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE indexers SET graph_node_version = $1 WHERE address = $2`, versionID, addr[:])
	if err != nil {
		return fmt.Errorf("link indexer version for %s: %w", addr, err)
	}
	return nil
}

// RecordDeploymentApiVersions persists the subgraph API versions a
// deployment reported, or an error string if the query itself failed.
func (s *Store) RecordDeploymentApiVersions(ctx context.Context, cid types.SubgraphDeployment, versions []string, queryErr error) error {
	var depID int64
	if err := s.pool.QueryRow(ctx, `SELECT id FROM sg_deployments WHERE ipfs_cid = $1`, string(cid)).Scan(&depID); err != nil {
		return fmt.Errorf("record api versions: deployment %s: %w", cid, ErrNotFound)
	}
	var errStr *string
	if queryErr != nil {
		msg := queryErr.Error()
		errStr = &msg
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sg_deployment_api_versions (sg_deployment_id, api_versions, error)
		VALUES ($1, $2, $3)
	`, depID, versions, errStr)
	if err != nil {
		return fmt.Errorf("record api versions for %s: %w", cid, err)
	}
	return nil
}

// DeploymentApiVersions returns the most recent API-versions observation
// for a deployment.
func (s *Store) DeploymentApiVersions(ctx context.Context, cid types.SubgraphDeployment) ([]string, error) {
	var versions []string
	err := s.pool.QueryRow(ctx, `
		SELECT v.api_versions
		FROM sg_deployment_api_versions v
		JOIN sg_deployments d ON d.id = v.sg_deployment_id
		WHERE d.ipfs_cid = $1
		ORDER BY v.created_at DESC
		LIMIT 1
	`, string(cid)).Scan(&versions)
	if err != nil {
		return nil, fmt.Errorf("deployment api versions for %s: %w", cid, ErrNotFound)
	}
	return versions, nil
}

// RecordFailedQuery logs a wire-level query failure against an indexer,
// giving operators a queryable audit trail of indexer flakiness.
func (s *Store) RecordFailedQuery(ctx context.Context, addr types.Address, queryName, rawQuery, response string) error {
	var indexerID int64
	if err := s.pool.QueryRow(ctx, `SELECT id FROM indexers WHERE address = $1`, addr[:]).Scan(&indexerID); err != nil {
		// Best-effort: if the indexer isn't known yet there's nothing to
		// attach the failure to.
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_queries (indexer_id, query_name, raw_query, response)
		VALUES ($1, $2, $3, $4)
	`, indexerID, queryName, rawQuery, response)
	if err != nil {
		return fmt.Errorf("record failed query for %s: %w", addr, err)
	}
	return nil
}
