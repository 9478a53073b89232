package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceloop/pkg/audioio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := audioio.ListDevices()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tIN\tOUT\tRATE\tHOST API")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.0f\t%s\n", d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, d.HostAPI)
		}
		return w.Flush()
	},
}
