package storage

import (
	"context"
	"errors"

	"github.com/luma/samplecast/protocol"
	"github.com/luma/samplecast/sample"
)

var (
	ErrInstanceNotFound = errors.New("Instance not found")
	ErrInstanceLimit    = errors.New("Too many instances, the max instances resource limit was reached")
	ErrSampleLimit      = errors.New("Too many samples, the max samples per instance resource limit was reached")
	ErrDuplicateSample  = errors.New("Sample is not newer than the last sample from the same writer")
	ErrStoreClosed      = errors.New("Store is closed")
)

// Change is a sample for an instance, as received from a writer.
type Change struct {
	Instance sample.KeyHash
	Writer   protocol.EntityID
	Sequence int64
	Sample   sample.Sample
}

// ChangeFromMessage builds the change a decoded DATA submessage makes.
func ChangeFromMessage(msg *protocol.DataMessage) *Change {
	return &Change{
		Instance: msg.InstanceHandle(),
		Writer:   msg.WriterID,
		Sequence: msg.SequenceNumber,
		Sample:   msg.Sample,
	}
}

// Update describes what a change did to an instance. Value is JSON.
type Update struct {
	Key   sample.KeyHash
	Value []byte
}

type Store interface {
	// Apply records the change against its instance and returns the
	// resulting update, which is also sent to every update listener.
	Apply(ctx context.Context, change *Change) (*Update, error)

	// Get returns the JSON record of an instance.
	Get(ctx context.Context, key sample.KeyHash) ([]byte, error)

	// Samples returns the data samples held for an instance, oldest first.
	Samples(ctx context.Context, key sample.KeyHash) ([]sample.Sample, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	// Unlisten stops sending updates to a channel from ListenToUpdates and
	// closes it.
	Unlisten(updates <-chan *Update)

	Close() error
}
