package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/corey/dmtree/internal/boundary"
)

var (
	encodeProcs  bool
	encodeVar    string
	encodeOutput string
)

var encodeCmd = &cobra.Command{
	Use:   "encode <file.dme> <type>",
	Short: "Write the msgpack encoding of a type's entries",
	Long: "Encodes the vars (or, with --procs, the procs) written at <type>. " +
		"Output goes to -o, or stdout; a terminal gets a hex dump instead of raw bytes.",
	Args: cobra.ExactArgs(2),
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().BoolVar(&encodeProcs, "procs", false, "Encode procs instead of vars")
	encodeCmd.Flags().StringVar(&encodeVar, "var", "", "Encode the single var with this name")
	encodeCmd.Flags().StringVarP(&encodeOutput, "output", "o", "", "Write to this file")
	encodeCmd.MarkFlagsMutuallyExclusive("procs", "var")
}

func runEncode(cmd *cobra.Command, args []string) error {
	var data []byte
	err := withType(args[0], args[1], func(n *boundary.NodeHandle, _ *boundary.ContextHandle) error {
		buf, err := encodeNode(n)
		if err != nil {
			return err
		}
		defer buf.Free()
		b, err := buf.Bytes()
		if err != nil {
			return err
		}
		data = append([]byte(nil), b...)
		return nil
	})
	if err != nil {
		return err
	}

	if encodeOutput != "" {
		if err := os.WriteFile(encodeOutput, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), encodeOutput)
		return nil
	}
	return writeBytes(cmd.OutOrStdout(), data, isStdoutTTY())
}

func encodeNode(n *boundary.NodeHandle) (*boundary.Buffer, error) {
	switch {
	case encodeProcs:
		return n.EncodeProcedures()
	case encodeVar != "":
		v, err := n.Variable(encodeVar)
		if err != nil {
			return nil, err
		}
		defer v.Free()
		return v.Encode()
	default:
		return n.EncodeVariables()
	}
}

// writeBytes writes raw bytes, or a hex dump for a terminal.
func writeBytes(w io.Writer, data []byte, tty bool) error {
	if tty {
		_, err := io.WriteString(w, hex.Dump(data))
		return err
	}
	_, err := w.Write(data)
	return err
}

// isStdoutTTY returns true if stdout is connected to a terminal.
func isStdoutTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
