package gateway

import (
	"net"
	"os"
	"strings"

	"github.com/danmuck/vitalsgw/internal/identity"
	"github.com/danmuck/vitalsgw/internal/sink"
)

// resolveDevice builds the envelope identity from the stored name, the
// configured id, and the first hardware address on the host.
func resolveDevice(cfg Config, id identity.Identity) sink.Device {
	mac := primaryMAC()
	deviceID := strings.TrimSpace(cfg.DeviceID)
	if deviceID == "" {
		switch {
		case mac != "":
			deviceID = "rs232-" + strings.ReplaceAll(mac, ":", "")
		default:
			host, err := os.Hostname()
			if err != nil || host == "" {
				host = "local"
			}
			deviceID = "rs232-" + host
		}
	}
	return sink.Device{ID: deviceID, Name: id.DeviceName, MACAddress: strings.ToUpper(mac)}
}

func primaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}
