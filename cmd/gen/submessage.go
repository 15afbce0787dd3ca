package gen

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/samplecast/protocol"
	"github.com/luma/samplecast/sample"
)

var (
	sampleKind   string
	changeKind   string
	key          string
	payload      string
	sequence     int64
	littleEndian bool
)

var changeKinds = map[string]sample.ChangeKind{
	"disposed":              sample.NotAliveDisposed,
	"unregistered":          sample.NotAliveUnregistered,
	"disposed-unregistered": sample.NotAliveDisposedUnregistered,
}

var SubmessageCmd = &cobra.Command{
	Use:   "submessage",
	Short: "Generate a DATA submessage as hex",
	Long: `Generate a DATA submessage as hex, for use with "samplecast inspect" or
to publish by hand.

	samplecast gen submessage --kind data --key sensor-1 --payload hello
	samplecast gen submessage --kind dispose-hash --change-kind unregistered --key sensor-1`,

	RunE: func(cmd *cobra.Command, args []string) error {
		msg := &protocol.DataMessage{
			WriterID:       protocol.EntityID{0, 0, 1, 2},
			SequenceNumber: sequence,
		}

		keyHash := sample.ComputeKeyHash([]byte(key), false)
		serializedKey := sample.NewSerializedPayload(sample.CDR_BE, [2]byte{}, []byte(key))

		switch sampleKind {
		case "data":
			msg.KeyHash = &keyHash
			msg.Sample = sample.New(sample.NewSerializedPayload(sample.CDR_LE, [2]byte{}, []byte(payload)))

		case "dispose-key":
			kind, err := parseChangeKind()
			if err != nil {
				return err
			}
			msg.Sample = sample.NewDisposedByKey(kind, serializedKey)

		case "dispose-hash":
			kind, err := parseChangeKind()
			if err != nil {
				return err
			}
			msg.Sample = sample.NewDisposedByKeyHash(kind, keyHash)

		default:
			return fmt.Errorf("unknown sample kind '%s', expected data, dispose-key or dispose-hash", sampleKind)
		}

		var order binary.ByteOrder = binary.BigEndian
		if littleEndian {
			order = binary.LittleEndian
		}

		b, err := protocol.EncodeData(msg, order)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(b))

		return nil
	},
}

func parseChangeKind() (sample.ChangeKind, error) {
	kind, ok := changeKinds[changeKind]
	if !ok {
		return sample.Alive, fmt.Errorf("unknown change kind '%s', expected disposed, unregistered or disposed-unregistered", changeKind)
	}

	return kind, nil
}

func init() {
	flags := SubmessageCmd.Flags()

	flags.StringVar(&sampleKind, "kind", "data", "data, dispose-key or dispose-hash")
	flags.StringVar(&changeKind, "change-kind", "disposed", "disposed, unregistered or disposed-unregistered")
	flags.StringVar(&key, "key", "", "the instance key")
	flags.StringVar(&payload, "payload", "", "the data payload")
	flags.Int64Var(&sequence, "seq", 1, "the writer sequence number")
	flags.BoolVar(&littleEndian, "little-endian", false, "encode the submessage little endian")
}
