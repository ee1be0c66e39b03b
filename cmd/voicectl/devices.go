// ABOUTME: devices subcommand
// ABOUTME: Prints the selected backend, its capabilities and its devices
package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

func runDevices(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("devices")
	if err := fs.Parse(args); err != nil {
		return err
	}

	outputs, err := a.manager.ListPlaybackDevices(ctx)
	if err != nil {
		return err
	}

	caps := a.manager.Capabilities()
	lat := a.manager.Latency()
	fmt.Fprintf(a.stdout, "Backend: %s (pause=%t live-volume=%t recording=%t)\n",
		a.manager.BackendName(), caps.Pause, caps.LiveVolume, caps.Recording)
	fmt.Fprintf(a.stdout, "Latency: output %.1fms, input %.1fms, buffer %.0fms\n\n", lat.OutputMs, lat.InputMs, lat.BufferMs)

	printDevices(a, "Playback", outputs)

	if !caps.Recording {
		fmt.Fprintln(a.stdout, "\nRecording: not supported by this backend")
		return nil
	}
	inputs, err := a.manager.ListRecordingDevices(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout)
	printDevices(a, "Recording", inputs)
	return nil
}

func printDevices(a *app, title string, devices []audio.Device) {
	fmt.Fprintf(a.stdout, "%s:\n", title)
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  \tID\tNAME\tRATE\tCHANNELS")
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%d\n", marker, d.ID, d.Name, d.SampleRate, d.Channels)
	}
	_ = tw.Flush()
}
