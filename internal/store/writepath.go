package store

import (
	"context"
	"fmt"

	"github.com/graphix-core/graphix-core/internal/types"
)

// PoiWrite is one entry of a write_pois batch: the deployment, indexer
// identity, block pointer, and PoI hash observed together.
type PoiWrite struct {
	Deployment  types.SubgraphDeployment
	IndexerAddr types.Address
	IndexerName string
	Block       types.BlockPointer
	Hash        types.PoiHash
}

// Liveness selects whether a write batch also replaces the deployment's
// live-PoI rows.
type Liveness int

const (
	NotLive Liveness = iota
	Live
)

// WritePois groups the batch by deployment, requires every PoI in a group
// to share one block pointer, get-or-inserts the deployment and block,
// resolves indexer ids (failing ErrUnknownIndexer if any are missing),
// inserts the PoIs, and if liveness is Live replaces every LivePoI row for
// that deployment in the same transaction. An empty batch is a no-op that
// commits.
func (s *Store) WritePois(ctx context.Context, batch []PoiWrite, liveness Liveness) error {
	if len(batch) == 0 {
		return nil
	}

	groups := make(map[types.SubgraphDeployment][]PoiWrite)
	var order []types.SubgraphDeployment
	for _, w := range batch {
		if _, ok := groups[w.Deployment]; !ok {
			order = append(order, w.Deployment)
		}
		groups[w.Deployment] = append(groups[w.Deployment], w)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin write_pois transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, deployment := range order {
		group := groups[deployment]

		// Every PoI in the group must share one block pointer.
		block := group[0].Block
		for _, w := range group[1:] {
			if w.Block.Number != block.Number || string(w.Block.Hash) != string(block.Hash) {
				return fmt.Errorf("write_pois group for %s has mismatched block pointers: %w", deployment, ErrInvariantViolation)
			}
		}

		depID, err := s.getOrInsertDeployment(ctx, tx, deployment)
		if err != nil {
			return err
		}
		blockID, err := s.getOrInsertBlock(ctx, tx, depID, block)
		if err != nil {
			return err
		}

		type written struct {
			poiID     int64
			indexerID int64
		}
		results := make([]written, 0, len(group))

		for _, w := range group {
			var indexerID int64
			err := tx.QueryRow(ctx, `SELECT id FROM indexers WHERE address = $1`, w.IndexerAddr[:]).Scan(&indexerID)
			if err != nil {
				return fmt.Errorf("resolve indexer %s for deployment %s: %w", w.IndexerAddr, deployment, ErrUnknownIndexer)
			}

			var poiID int64
			err = tx.QueryRow(ctx, `
				INSERT INTO pois (poi, sg_deployment_id, indexer_id, block_id)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, w.Hash[:], depID, indexerID, blockID).Scan(&poiID)
			if err != nil {
				return fmt.Errorf("insert poi for indexer %s: %w", w.IndexerAddr, err)
			}
			results = append(results, written{poiID: poiID, indexerID: indexerID})
		}

		if liveness == Live {
			if _, err := tx.Exec(ctx, `DELETE FROM live_pois WHERE sg_deployment_id = $1`, depID); err != nil {
				return fmt.Errorf("clear live pois for deployment %s: %w", deployment, err)
			}
			for _, r := range results {
				if _, err := tx.Exec(ctx, `
					INSERT INTO live_pois (sg_deployment_id, indexer_id, poi_id)
					VALUES ($1, $2, $3)
					ON CONFLICT (sg_deployment_id, indexer_id) DO UPDATE SET poi_id = EXCLUDED.poi_id
				`, depID, r.indexerID, r.poiID); err != nil {
					return fmt.Errorf("insert live poi for deployment %s: %w", deployment, err)
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit write_pois transaction: %w", err)
	}
	return nil
}

// getOrInsertDeployment resolves a deployment by CID, creating it against
// a fixed "mainnet" sentinel network if it doesn't exist yet; resolving
// the deployment's actual network via the registry is an open follow-up
// (see DESIGN.md).
func (s *Store) getOrInsertDeployment(ctx context.Context, tx pgxTx, cid types.SubgraphDeployment) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM sg_deployments WHERE ipfs_cid = $1`, string(cid)).Scan(&id)
	if err == nil {
		return id, nil
	}

	networkID, err := s.getOrInsertNetwork(ctx, tx, "mainnet")
	if err != nil {
		return 0, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO sg_deployments (ipfs_cid, network)
		VALUES ($1, $2)
		ON CONFLICT (ipfs_cid) DO UPDATE SET ipfs_cid = EXCLUDED.ipfs_cid
		RETURNING id
	`, string(cid), networkID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get-or-insert deployment %s: %w", cid, err)
	}
	return id, nil
}

func (s *Store) getOrInsertNetwork(ctx context.Context, tx pgxTx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO networks (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get-or-insert network %s: %w", name, err)
	}
	return id, nil
}

// getOrInsertBlock resolves a block by (network, hash); the existing hash
// wins regardless of the reported number; hash is canonical.
func (s *Store) getOrInsertBlock(ctx context.Context, tx pgxTx, deploymentID int64, block types.BlockPointer) (int64, error) {
	var networkID int64
	if err := tx.QueryRow(ctx, `SELECT network FROM sg_deployments WHERE id = $1`, deploymentID).Scan(&networkID); err != nil {
		return 0, fmt.Errorf("resolve network for deployment id %d: %w", deploymentID, err)
	}

	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM blocks WHERE network_id = $1 AND hash = $2`, networkID, []byte(block.Hash)).Scan(&id)
	if err == nil {
		return id, nil
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO blocks (network_id, number, hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (network_id, hash) DO UPDATE SET hash = EXCLUDED.hash
		RETURNING id
	`, networkID, block.Number, []byte(block.Hash)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get-or-insert block %s: %w", block.Hash, err)
	}
	return id, nil
}

// GetOrInsertIndexer resolves an indexer by address, creating it with name
// if absent. Called during roster persistence, distinct from WritePois's
// indexer resolution which fails closed (ErrUnknownIndexer) rather than
// creating.
func (s *Store) GetOrInsertIndexer(ctx context.Context, addr types.Address, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO indexers (address, name) VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (address) DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name, ''), indexers.name)
		RETURNING id
	`, addr[:], name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get-or-insert indexer %s: %w", addr, err)
	}
	return id, nil
}
