package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luma/samplecast/protocol"
)

var InspectCmd = &cobra.Command{
	Use:   "inspect <submessage hex>",
	Short: "Decode a DATA submessage and describe the sample it carries",
	Long: `Decode a DATA submessage and describe the sample it carries

Usage
	samplecast inspect "15 05 0c 00 ..."

Whitespace in the hex dump is ignored.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hex.DecodeString(strings.Join(strings.Fields(args[0]), ""))
		if err != nil {
			return fmt.Errorf("Failed to decode hex: %w", err)
		}

		msg, err := protocol.DecodeData(raw)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "sample:       %s\n", msg.Sample.Kind())
		fmt.Fprintf(out, "change kind:  %s\n", msg.Sample.ChangeKind())
		fmt.Fprintf(out, "payload size: %d\n", msg.Sample.PayloadSize())

		if payload, ok := msg.Sample.SerializedPayload(); ok {
			fmt.Fprintf(out, "encoding:     %s\n", payload.Representation())
		}

		fmt.Fprintf(out, "instance:     %s\n", msg.InstanceHandle())
		fmt.Fprintf(out, "writer:       %s\n", msg.WriterID)
		fmt.Fprintf(out, "sequence:     %d\n", msg.SequenceNumber)

		return nil
	},
}
