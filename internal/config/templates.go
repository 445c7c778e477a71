package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "gateway":
		return gatewayTemplate, nil
	case "identity":
		return identityTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config mkdir %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const gatewayTemplate = `[serial]
port = "/dev/ttyUSB0"
baud = 9600
data_bits = 8
parity = "none"
stop_bits = "1"
read_timeout = "100ms"

[ingest]
wait_complete_ms = 5000
max_frame_bytes = 4096
max_line_bytes = 512
poll_interval_ms = 10

[identity]
path = "local/identity.toml"

[mqtt]
enabled = true
broker = "tcp://10.1.10.1:1883"
client_id = "vitalsgw"
topic = "clinic/vitals/data"
qos = 1

[http]
enabled = false
url = "http://localhost:3000/api/vitals"
timeout_ms = 5000

[status]
addr = ":9200"
token = ""
cors_origins = ["http://localhost:3000"]

[gateway]
heartbeat_interval_ms = 30000
queue_size = 256
publish_timeout_ms = 5000
log_records = true
`

const identityTemplate = `device_name = "GO-RS232"
`
