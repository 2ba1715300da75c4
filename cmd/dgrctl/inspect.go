package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/danmuck/dgr/internal/protocol"
	"github.com/danmuck/dgr/internal/registry"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cmdInspect = &cobra.Command{
	Use:   "inspect <file|->",
	Short: "Decode a captured snapshot and list its variables",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var flagInspect struct {
	Values bool
}

func init() {
	cmdInspect.Flags().BoolVar(&flagInspect.Values, "values", false, "print each value as hex")
	cmdMain.AddCommand(cmdInspect)
}

func runInspect(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	packet, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	reg := registry.New(registry.DefaultLimits())
	if err := protocol.DecodeInto(reg, packet); err != nil {
		return err
	}
	return writeList(cmd.OutOrStdout(), reg, len(packet), flagInspect.Values)
}

// writeList prints one row per variable: index, size and name.
func writeList(w io.Writer, reg *registry.Registry, packetBytes int, values bool) error {
	header := color.New(color.Bold)
	header.Fprintf(w, "%d variables, %s on the wire\n", reg.Len(), humanize.IBytes(uint64(packetBytes)))

	wr := tabwriter.NewWriter(w, 3, 4, 2, ' ', 0)
	fmt.Fprint(wr, "INDEX\tSIZE\tNAME")
	if values {
		fmt.Fprint(wr, "\tVALUE")
	}
	fmt.Fprint(wr, "\n")

	index := 0
	for name, data := range reg.All() {
		fmt.Fprintf(wr, "%d\t%d\t%s", index, len(data), name)
		if values {
			fmt.Fprintf(wr, "\t%s", hex.EncodeToString(data))
		}
		fmt.Fprint(wr, "\n")
		index++
	}
	return wr.Flush()
}
