package forest

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/notargets/QuadForest/quadrant"
)

// snapshot is the encoded state of one rank's share of a forest
type snapshot struct {
	ID        string     `cbor:"1,keyasint"`
	Rank      int        `cbor:"2,keyasint"`
	Size      int        `cbor:"3,keyasint"`
	NumBlocks int        `cbor:"4,keyasint"`
	Quadrants []Quadrant `cbor:"5,keyasint"`
	Owners    []Quadrant `cbor:"6,keyasint"`
}

var snapshotEncMode cbor.EncMode

func init() {
	var err error
	if snapshotEncMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
}

// MarshalSnapshot encodes the local cells and the ownership partition in
// deterministic CBOR. Node data is not saved.
func (f *Forest) MarshalSnapshot() ([]byte, error) {
	s := snapshot{
		ID:        f.id.String(),
		Rank:      f.comm.Rank(),
		Size:      f.comm.Size(),
		NumBlocks: f.numBlocks(),
		Quadrants: f.quadrants.Items(),
		Owners:    f.owners,
	}
	data, err := snapshotEncMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding forest %s: %w", f.id, err)
	}
	return data, nil
}

// UnmarshalSnapshot restores cells saved by MarshalSnapshot on the same rank
// of a group of the same size. The topology must already be set and match
// the saved block count. No communication takes place.
func (f *Forest) UnmarshalSnapshot(data []byte) error {
	if err := f.requireTopology(); err != nil {
		return err
	}
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding forest snapshot: %w", err)
	}
	switch {
	case s.Size != f.comm.Size() || s.Rank != f.comm.Rank():
		return fmt.Errorf("snapshot of rank %d/%d restored on rank %d/%d", s.Rank, s.Size, f.comm.Rank(), f.comm.Size())
	case s.NumBlocks != f.numBlocks():
		return fmt.Errorf("snapshot has %d blocks, topology %d", s.NumBlocks, f.numBlocks())
	case len(s.Owners) != s.Size:
		return fmt.Errorf("snapshot has %d owners for %d ranks", len(s.Owners), s.Size)
	}
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	f.id = id
	f.log = f.log.WithField("forest", id.String())
	items := s.Quadrants
	for i := range items {
		items[i].Tag = int32(i)
	}
	f.quadrants = quadrant.NewArray(items)
	f.owners = s.Owners
	f.invalidate()
	return nil
}

// ID identifies the forest in logs and snapshots
func (f *Forest) ID() uuid.UUID { return f.id }
