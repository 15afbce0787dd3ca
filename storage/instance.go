package storage

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/samplecast/protocol"
	"github.com/luma/samplecast/sample"
)

type InstanceState string

const (
	StateAlive        InstanceState = "alive"
	StateDisposed     InstanceState = "disposed"
	StateUnregistered InstanceState = "unregistered"
)

type instance struct {
	keyHash sample.KeyHash
	state   InstanceState

	// Last sequence number seen from each writer
	lastSequence map[protocol.EntityID]int64
	lastChange   sample.ChangeKind

	// Data samples, oldest first
	samples      []sample.Sample
	payloadBytes int

	// Bumped each time the instance comes back to life
	disposedGeneration  int
	noWritersGeneration int
}

func newInstance(keyHash sample.KeyHash) *instance {
	return &instance{
		keyHash:      keyHash,
		state:        StateAlive,
		lastSequence: make(map[protocol.EntityID]int64),
	}
}

// apply moves the instance along its lifecycle. The caller has checked the
// change against the resource limits already.
func (i *instance) apply(change *Change, history HistoryQoS) {
	kind := change.Sample.ChangeKind()

	switch {
	case kind == sample.Alive:
		switch i.state {
		case StateDisposed:
			i.disposedGeneration++
		case StateUnregistered:
			i.noWritersGeneration++
		}

		i.state = StateAlive
		i.push(change.Sample, history)

	case kind.IsDisposed():
		i.state = StateDisposed

	case kind.IsUnregistered():
		// A disposed instance stays disposed when its writers go away
		if i.state == StateAlive {
			i.state = StateUnregistered
		}
	}

	i.lastSequence[change.Writer] = change.Sequence
	i.lastChange = kind
}

func (i *instance) push(s sample.Sample, history HistoryQoS) {
	if !history.KeepAll && len(i.samples) >= history.Depth {
		evicted := i.samples[0]
		i.payloadBytes -= evicted.PayloadSize()

		copy(i.samples, i.samples[1:])
		i.samples = i.samples[:len(i.samples)-1]
	}

	i.samples = append(i.samples, s)
	i.payloadBytes += s.PayloadSize()
}

func (i *instance) isDuplicate(change *Change) bool {
	last, seen := i.lastSequence[change.Writer]
	return seen && change.Sequence <= last
}

func (i *instance) record() ([]byte, error) {
	return setFields([]byte(`{}`), []field{
		{"keyHash", i.keyHash.String()},
		{"state", string(i.state)},
		{"lastChange", i.lastChange.String()},
		{"lastSequence", i.maxSequence()},
		{"samples", len(i.samples)},
		{"payloadBytes", i.payloadBytes},
		{"disposedGeneration", i.disposedGeneration},
		{"noWritersGeneration", i.noWritersGeneration},
	})
}

func (i *instance) maxSequence() int64 {
	var max int64
	for _, seq := range i.lastSequence {
		if seq > max {
			max = seq
		}
	}
	return max
}

// restoreInstance rebuilds an instance from a record written by record().
// Samples are not part of the record.
func restoreInstance(record gjson.Result) (*instance, error) {
	keyHash, err := sample.ParseKeyHash(record.Get("keyHash").String())
	if err != nil {
		return nil, err
	}

	inst := newInstance(keyHash)
	inst.disposedGeneration = int(record.Get("disposedGeneration").Int())
	inst.noWritersGeneration = int(record.Get("noWritersGeneration").Int())

	switch state := InstanceState(record.Get("state").String()); state {
	case StateDisposed, StateUnregistered:
		inst.state = state
	}

	return inst, nil
}

func updateRecord(change *Change, inst *instance) ([]byte, error) {
	return setFields([]byte(`{}`), []field{
		{"keyHash", change.Instance.String()},
		{"kind", change.Sample.Kind().String()},
		{"changeKind", change.Sample.ChangeKind().String()},
		{"payloadSize", change.Sample.PayloadSize()},
		{"writer", change.Writer.String()},
		{"sequence", change.Sequence},
		{"state", string(inst.state)},
	})
}

type field struct {
	path  string
	value interface{}
}

func setFields(doc []byte, fields []field) (_ []byte, err error) {
	for _, f := range fields {
		if doc, err = sjson.SetBytes(doc, f.path, f.value); err != nil {
			return nil, err
		}
	}

	return doc, nil
}
