package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/luma/samplecast/sample"
)

const (
	// SubmessageData is the submessage id of DATA
	SubmessageData byte = 0x15

	FlagEndianness         byte = 0x01
	FlagInlineQoS          byte = 0x02
	FlagData               byte = 0x04
	FlagKey                byte = 0x08
	FlagNonStandardPayload byte = 0x10

	PIDPad        uint16 = 0x0000
	PIDSentinel   uint16 = 0x0001
	PIDKeyHash    uint16 = 0x0070
	PIDStatusInfo uint16 = 0x0071

	pidMustUnderstand uint16 = 0x4000

	submessageHeaderSize = 4

	// extraFlags, octetsToInlineQos, readerId, writerId, writerSN
	dataHeadSize = 20

	// octetsToInlineQos is counted from the end of its own field
	octetsToInlineQosOffset  = 4
	octetsToInlineQosDefault = dataHeadSize - octetsToInlineQosOffset

	statusInfoSize         = 4
	statusInfoDisposed     = 0x01
	statusInfoUnregistered = 0x02
)

var (
	ErrSubmessageTooShort    = errors.New("Submessage is malformed, it appears to be too short")
	ErrSubmessageTooLarge    = errors.New("Submessage does not fit in 0xffff octets")
	ErrNotDataSubmessage     = errors.New("Submessage is not a DATA submessage")
	ErrDataAndKeyFlags       = errors.New("DATA submessage has both the data and the key flag set")
	ErrNoSample              = errors.New("DATA submessage carries neither a payload, a key nor a key hash with status info")
	ErrNotDisposal           = errors.New("DATA submessage without a data payload has status info that neither disposes nor unregisters")
	ErrBadKeyHashLength      = errors.New("Key hash parameter must be exactly 16 bytes")
	ErrBadStatusInfoLength   = errors.New("Status info parameter must be exactly 4 bytes")
	ErrParameterOverrun      = errors.New("Inline QoS parameter runs past the end of the submessage")
	ErrMissingSentinel       = errors.New("Inline QoS parameter list is not terminated by a sentinel")
	ErrUnknownRepresentation = errors.New("Serialized payload has an unknown representation identifier")
	ErrKeyHashRequired       = errors.New("Key is not big endian CDR, a key hash parameter is required to identify the instance")
)

// EntityID identifies a reader or writer within a participant.
type EntityID [4]byte

func (e EntityID) String() string {
	return hex.EncodeToString(e[:])
}

// StatusInfo is the value of the PID_STATUS_INFO inline QoS parameter.
type StatusInfo [statusInfoSize]byte

// StatusInfoFor returns the status info announcing kind.
func StatusInfoFor(kind sample.ChangeKind) StatusInfo {
	var s StatusInfo
	if kind.IsDisposed() {
		s[3] |= statusInfoDisposed
	}
	if kind.IsUnregistered() {
		s[3] |= statusInfoUnregistered
	}
	return s
}

func (s StatusInfo) Disposed() bool {
	return s[3]&statusInfoDisposed != 0
}

func (s StatusInfo) Unregistered() bool {
	return s[3]&statusInfoUnregistered != 0
}

// ChangeKind maps the status flags to a disposal kind. It returns false if
// neither flag is set.
func (s StatusInfo) ChangeKind() (sample.ChangeKind, bool) {
	switch {
	case s.Disposed() && s.Unregistered():
		return sample.NotAliveDisposedUnregistered, true
	case s.Disposed():
		return sample.NotAliveDisposed, true
	case s.Unregistered():
		return sample.NotAliveUnregistered, true
	default:
		return sample.Alive, false
	}
}

// DataMessage is a decoded DATA submessage.
type DataMessage struct {
	ReaderID       EntityID
	WriterID       EntityID
	SequenceNumber int64

	// Inline QoS, nil when absent
	KeyHash    *sample.KeyHash
	StatusInfo *StatusInfo

	Sample sample.Sample
}

// InstanceHandle identifies the instance the message is about. It prefers the
// key hash sent by the writer, then one computed from a big endian serialized
// key. Data without a key hash belongs to the single instance of a keyless
// topic, which is the zero hash.
//
// Other key encodings cannot be hashed, DecodeData rejects them unless a key
// hash was sent.
func (m *DataMessage) InstanceHandle() sample.KeyHash {
	if m.KeyHash != nil {
		return *m.KeyHash
	}

	if h, ok := m.Sample.KeyHash(); ok {
		return h
	}

	if m.Sample.Kind() == sample.KindDisposeByKey {
		if key, _ := m.Sample.SerializedPayload(); key.Representation().BigEndian() {
			return sample.ComputeKeyHash(key.Bytes(), false)
		}
	}

	return sample.KeyHash{}
}

// DecodeData parses a single DATA submessage, header included, and decides
// which kind of sample it carries.
func DecodeData(b []byte) (*DataMessage, error) {
	if len(b) < submessageHeaderSize {
		return nil, ErrSubmessageTooShort
	}

	if b[0] != SubmessageData {
		return nil, fmt.Errorf("Submessage id 0x%02x: %w", b[0], ErrNotDataSubmessage)
	}

	flags := b[1]

	var order binary.ByteOrder = binary.BigEndian
	if flags&FlagEndianness != 0 {
		order = binary.LittleEndian
	}

	body := b[submessageHeaderSize:]

	// Zero means the submessage extends to the end of the message
	if octets := int(order.Uint16(b[2:4])); octets != 0 {
		if octets > len(body) {
			return nil, ErrSubmessageTooShort
		}
		body = body[:octets]
	}

	if len(body) < dataHeadSize {
		return nil, ErrSubmessageTooShort
	}

	msg := &DataMessage{}
	copy(msg.ReaderID[:], body[4:8])
	copy(msg.WriterID[:], body[8:12])

	high := int32(order.Uint32(body[12:16]))
	low := order.Uint32(body[16:20])
	msg.SequenceNumber = int64(high)<<32 | int64(low)

	pos := octetsToInlineQosOffset + int(order.Uint16(body[2:4]))
	if pos > len(body) {
		return nil, ErrSubmessageTooShort
	}

	if flags&FlagInlineQoS != 0 {
		n, err := msg.readInlineQoS(body[pos:], order)
		if err != nil {
			return nil, err
		}
		pos += n
	}

	hasData := flags&FlagData != 0
	hasKey := flags&FlagKey != 0

	if hasData && hasKey {
		return nil, ErrDataAndKeyFlags
	}

	var payload sample.SerializedPayload
	if hasData || hasKey {
		var err error
		payload, err = decodePayload(body[pos:], flags&FlagNonStandardPayload != 0)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case hasData:
		msg.Sample = sample.New(payload)

	case hasKey:
		// A key without status info is taken to be a dispose
		kind := sample.NotAliveDisposed

		if msg.StatusInfo != nil {
			var ok bool
			if kind, ok = msg.StatusInfo.ChangeKind(); !ok {
				return nil, ErrNotDisposal
			}
		}

		if msg.KeyHash == nil && !payload.Representation().BigEndian() {
			return nil, fmt.Errorf("Representation %s: %w", payload.Representation(), ErrKeyHashRequired)
		}

		msg.Sample = sample.NewDisposedByKey(kind, payload)

	case msg.KeyHash != nil && msg.StatusInfo != nil:
		kind, ok := msg.StatusInfo.ChangeKind()
		if !ok {
			return nil, ErrNotDisposal
		}

		msg.Sample = sample.NewDisposedByKeyHash(kind, *msg.KeyHash)

	default:
		return nil, ErrNoSample
	}

	return msg, nil
}

// readInlineQoS reads a parameter list and returns the number of bytes it
// occupied, sentinel included.
func (m *DataMessage) readInlineQoS(b []byte, order binary.ByteOrder) (int, error) {
	off := 0

	for {
		if len(b)-off < 4 {
			return 0, ErrMissingSentinel
		}

		pid := order.Uint16(b[off:])
		length := int(order.Uint16(b[off+2:]))
		off += 4

		if pid == PIDSentinel {
			return off, nil
		}

		if length > len(b)-off {
			return 0, ErrParameterOverrun
		}

		value := b[off : off+length]
		off += length

		switch pid &^ pidMustUnderstand {
		case PIDKeyHash:
			if length != sample.KeyHashSize {
				return 0, ErrBadKeyHashLength
			}

			var h sample.KeyHash
			copy(h[:], value)
			m.KeyHash = &h

		case PIDStatusInfo:
			if length != statusInfoSize {
				return 0, ErrBadStatusInfoLength
			}

			var s StatusInfo
			copy(s[:], value)
			m.StatusInfo = &s
		}
	}
}

func decodePayload(b []byte, nonStandard bool) (sample.SerializedPayload, error) {
	if len(b) < sample.EncapsulationHeaderSize {
		return sample.SerializedPayload{}, ErrSubmessageTooShort
	}

	// The encapsulation header is big endian regardless of the submessage
	rep := sample.RepresentationIdentifier(binary.BigEndian.Uint16(b[0:2]))
	if !nonStandard && !rep.Known() {
		return sample.SerializedPayload{}, fmt.Errorf("Representation %s: %w", rep, ErrUnknownRepresentation)
	}

	var options [2]byte
	copy(options[:], b[2:4])

	return sample.NewSerializedPayload(rep, options, b[sample.EncapsulationHeaderSize:]), nil
}

// EncodeData writes msg as a DATA submessage in the given byte order. The
// flags and the status info are derived from the sample; a key hash is sent
// for DisposeByKeyHash samples and whenever msg.KeyHash is set.
func EncodeData(msg *DataMessage, order binary.ByteOrder) ([]byte, error) {
	var flags byte
	if order == binary.LittleEndian {
		flags |= FlagEndianness
	}

	keyHash := msg.KeyHash
	statusInfo := msg.StatusInfo

	var payload sample.SerializedPayload

	switch msg.Sample.Kind() {
	case sample.KindData:
		flags |= FlagData
		payload, _ = msg.Sample.SerializedPayload()

	case sample.KindDisposeByKey:
		flags |= FlagKey
		payload, _ = msg.Sample.SerializedPayload()

		if keyHash == nil && !payload.Representation().BigEndian() {
			return nil, fmt.Errorf("Representation %s: %w", payload.Representation(), ErrKeyHashRequired)
		}

		si := StatusInfoFor(msg.Sample.ChangeKind())
		statusInfo = &si

	case sample.KindDisposeByKeyHash:
		h, _ := msg.Sample.KeyHash()
		keyHash = &h

		si := StatusInfoFor(msg.Sample.ChangeKind())
		statusInfo = &si
	}

	body := make([]byte, dataHeadSize, dataHeadSize+64+payload.LenSerialized())
	order.PutUint16(body[0:], 0)
	order.PutUint16(body[2:], octetsToInlineQosDefault)
	copy(body[4:8], msg.ReaderID[:])
	copy(body[8:12], msg.WriterID[:])
	order.PutUint32(body[12:], uint32(int32(msg.SequenceNumber>>32)))
	order.PutUint32(body[16:], uint32(msg.SequenceNumber))

	if keyHash != nil || statusInfo != nil {
		flags |= FlagInlineQoS

		if keyHash != nil {
			body = appendParameter(body, order, PIDKeyHash, keyHash[:])
		}
		if statusInfo != nil {
			body = appendParameter(body, order, PIDStatusInfo, statusInfo[:])
		}

		body = appendParameter(body, order, PIDSentinel, nil)
	}

	if flags&(FlagData|FlagKey) != 0 {
		body = payload.AppendSerialized(body)
	}

	if len(body) > 0xffff {
		return nil, ErrSubmessageTooLarge
	}

	out := make([]byte, submessageHeaderSize, submessageHeaderSize+len(body))
	out[0] = SubmessageData
	out[1] = flags
	order.PutUint16(out[2:], uint16(len(body)))

	return append(out, body...), nil
}

func appendParameter(dst []byte, order binary.ByteOrder, pid uint16, value []byte) []byte {
	var header [4]byte
	order.PutUint16(header[0:], pid)
	order.PutUint16(header[2:], uint16(len(value)))

	dst = append(dst, header[:]...)
	return append(dst, value...)
}
