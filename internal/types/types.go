// Package types holds the domain value types shared across the indexer
// polling, consensus, and divergence-investigation packages: indexer
// addresses, PoI hashes, block pointers, and the handful of request/response
// shapes that cross package boundaries.
package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 20-byte on-chain indexer address. Identity, equality, and
// hashing of an indexer all derive from this value alone.
type Address [20]byte

// ParseAddress decodes a 0x-prefixed 40-hex-digit address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := decodeHex(s, len(a))
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText renders the wire form: 0x-prefixed hex.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// PoiHash is a 32-byte Proof of Indexing digest.
type PoiHash [32]byte

// ParsePoiHash decodes a 0x-prefixed 64-hex-digit PoI hash.
func ParsePoiHash(s string) (PoiHash, error) {
	var h PoiHash
	b, err := decodeHex(s, len(h))
	if err != nil {
		return h, fmt.Errorf("parse poi hash: %w", err)
	}
	copy(h[:], b)
	return h, nil
}

func (h PoiHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h PoiHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *PoiHash) UnmarshalText(text []byte) error {
	parsed, err := ParsePoiHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func decodeHex(s string, n int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}

// BlockHash is a variable-length block hash; canonical identity of a Block
// row is (network, hash) rather than (network, number).
type BlockHash []byte

func (h BlockHash) String() string {
	return "0x" + hex.EncodeToString(h)
}

func (h BlockHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *BlockHash) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseBlockHash decodes a 0x-prefixed hex block hash of any length.
func ParseBlockHash(s string) (BlockHash, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parse block hash: %w", err)
	}
	return BlockHash(b), nil
}

// BlockPointer identifies a block by both number and hash. Hash is
// canonical: a block already stored under the same hash wins, whatever
// number is reported.
type BlockPointer struct {
	Number int64     `json:"number"`
	Hash   BlockHash `json:"hash"`
}

// SubgraphDeployment is a content-addressed deployment identifier (IPFS CID).
type SubgraphDeployment string

// IndexingStatus is what a single IndexerClient reports for one deployment.
type IndexingStatus struct {
	Indexer          Address
	Deployment       SubgraphDeployment
	NetworkName      string
	LatestBlock      BlockPointer
	EarliestBlockNum int64
}

// PoiRequest asks one indexer for the PoI of one (deployment, block).
type PoiRequest struct {
	Deployment  SubgraphDeployment `json:"deployment"`
	BlockNumber int64              `json:"blockNumber"`
}

// ProofOfIndexing is one indexer's answer to one PoiRequest. Err is non-nil
// when the indexer could not produce a PoI for that request; Hash is the
// zero value in that case.
type ProofOfIndexing struct {
	Request PoiRequest
	Hash    PoiHash
	Err     error
}

// GraphNodeVersion is a best-effort version observation for an indexer.
type GraphNodeVersion struct {
	VersionString string
	Commit        string
	ErrorResponse string
}

// CachedEthereumCall is report-enrichment data: a single cached eth_call
// an indexer recorded while processing a block.
type CachedEthereumCall struct {
	Contract Address `json:"contract"`
	CallData []byte  `json:"callData"`
	Result   []byte  `json:"result"`
}

// EntityChange is report-enrichment data: one entity mutation an indexer
// recorded for a (deployment, block).
type EntityChange struct {
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entityId"`
	Operation string         `json:"operation"`
	Data      map[string]any `json:"data"`
}
