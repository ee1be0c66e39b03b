// ABOUTME: Device enumeration through pactl
// ABOUTME: Falls back to a single default device when PulseAudio tooling is absent
package subprocess

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/backend"
)

type deviceClass struct {
	list          string // pactl list short <list>
	defaultPrefix string // line in pactl info naming the default
}

var (
	sinkDevices   = deviceClass{list: "sinks", defaultPrefix: "Default Sink:"}
	sourceDevices = deviceClass{list: "sources", defaultPrefix: "Default Source:"}
)

func (b *Backend) listDevices(ctx context.Context, class deviceClass) ([]audio.Device, error) {
	cfg := b.config()

	pactl, err := b.lookPath("pactl")
	if err != nil {
		return []audio.Device{backend.DefaultDevice(cfg)}, nil
	}

	out, err := b.command(ctx, pactl, "list", "short", class.list).Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list %s: %w", class.list, err)
	}
	devices := parseShortList(string(out), class == sourceDevices)
	if len(devices) == 0 {
		return []audio.Device{backend.DefaultDevice(cfg)}, nil
	}

	// not every pactl build prints defaults; the first device stands in
	if info, err := b.command(ctx, pactl, "info").Output(); err == nil {
		if name := parseDefault(string(info), class.defaultPrefix); name != "" {
			for i := range devices {
				devices[i].IsDefault = devices[i].ID == name
			}
		}
	}
	return devices, nil
}

// parseShortList reads "index\tname\tdriver\tspec\tstate" lines
func parseShortList(out string, skipMonitors bool) []audio.Device {
	var devices []audio.Device
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 || fields[1] == "" {
			continue
		}
		name := fields[1]
		if skipMonitors && strings.HasSuffix(name, ".monitor") {
			continue
		}

		d := audio.Device{ID: name, Name: name}
		if len(fields) >= 4 {
			d.SampleRate, d.Channels = parseSpec(fields[3])
		}
		devices = append(devices, d)
	}
	return devices
}

// parseSpec reads a sample spec such as "s16le 2ch 48000Hz"
func parseSpec(spec string) (rate, channels int) {
	for _, tok := range strings.Fields(spec) {
		switch {
		case strings.HasSuffix(tok, "Hz"):
			rate, _ = strconv.Atoi(strings.TrimSuffix(tok, "Hz"))
		case strings.HasSuffix(tok, "ch"):
			channels, _ = strconv.Atoi(strings.TrimSuffix(tok, "ch"))
		}
	}
	return rate, channels
}

func parseDefault(info, prefix string) string {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}
