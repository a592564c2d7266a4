package server

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	blocks "github.com/ipfs/go-block-format"
	ds "github.com/ipfs/go-datastore"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	cidpkg "github.com/fission-codes/cideldill/cid"
)

// ErrCIDMismatch is returned by Put when the declared CID disagrees with
// the hash of the submitted bytes.
var ErrCIDMismatch = errors.New("server: declared cid does not match hash of bytes")

// ErrCIDNotFound is returned by Get for a cid-only submission the server has
// never seen.
var ErrCIDNotFound = errors.New("server: cid not found in content store")

// ContentStore is the append-only CID→bytes mapping, backed by an
// in-memory datastore holding block-wrapped values. Nothing is ever
// evicted: memory growth is accepted in exchange for protocol simplicity,
// and the client's bounded CID cache limits how much gets resent.
type ContentStore struct {
	backing ds.Datastore
}

// NewContentStore constructs an empty, process-lifetime content store.
func NewContentStore() *ContentStore {
	return &ContentStore{backing: ds.NewMapDatastore()}
}

// Put stores bytes under id after confirming the hash matches. It wraps the
// bytes as a blocks.Block so the backing datastore always holds a
// block-addressed value, not a bare byte slice.
func (cs *ContentStore) Put(id cidpkg.CID, data []byte) error {
	computed, err := cidpkg.Of(data)
	if err != nil {
		return errors.Wrap(err, "server: hashing submitted bytes")
	}
	if !cidpkg.Equal(computed, id) {
		return ErrCIDMismatch
	}

	blk := blocks.NewBlock(data)
	key := blockKey(id)
	if err := cs.backing.Put(context.Background(), key, blk.RawData()); err != nil {
		return errors.Wrap(err, "server: writing block to content store")
	}
	log.Debugf("cideldill: stored block %s (%s)", id.String(), humanize.Bytes(uint64(len(data))))
	return nil
}

// PutBatch validates and stores multiple {cid,bytes} pairs from one
// request. When more than one entry fails the hash check, every failure is
// aggregated into a single *multierror.Error instead of returning only the
// first, so a batched call/start submission surfaces every bad value.
func (cs *ContentStore) PutBatch(ids []cidpkg.CID, datas [][]byte) error {
	if len(ids) != len(datas) {
		return errors.New("server: mismatched ids/datas length in PutBatch")
	}
	var result *multierror.Error
	for i := range ids {
		if err := cs.Put(ids[i], datas[i]); err != nil {
			result = multierror.Append(result, fmt.Errorf("cid %s: %w", ids[i].String(), err))
		}
	}
	return result.ErrorOrNil()
}

// Get retrieves the bytes stored under id.
func (cs *ContentStore) Get(id cidpkg.CID) ([]byte, error) {
	data, err := cs.backing.Get(context.Background(), blockKey(id))
	if err != nil {
		if err == ds.ErrNotFound {
			return nil, ErrCIDNotFound
		}
		return nil, errors.Wrap(err, "server: reading block from content store")
	}
	return data, nil
}

// Has reports whether id is already stored, without fetching its bytes.
func (cs *ContentStore) Has(id cidpkg.CID) bool {
	ok, err := cs.backing.Has(context.Background(), blockKey(id))
	return err == nil && ok
}

// MissingOf filters ids down to those the store does not yet hold, for
// building a cid_not_found response's missing_cids list.
func (cs *ContentStore) MissingOf(ids []cidpkg.CID) []cidpkg.CID {
	var missing []cidpkg.CID
	for _, id := range ids {
		if !cs.Has(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

func blockKey(id cidpkg.CID) ds.Key {
	return ds.NewKey("/" + id.String())
}
