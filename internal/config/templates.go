package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a commented starter file in the given format.
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "toml", "":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config format: %s", format)
	}
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `# cqcctl / mocknode configuration

[client]
app_id = 10
host = "127.0.0.1"
port = 8803
connect_timeout = "5s"
# "0s" blocks forever waiting for the node
read_timeout = "10s"
write_timeout = "15s"
dial_attempts = 3

[remote]
app_id = 10
host = "127.0.0.1"
port = 8804

[node]
listen = ["127.0.0.1:8803", "127.0.0.1:8804"]
max_qubits = 0
mailbox_size = 256
metrics_addr = "127.0.0.1:9464"

[log]
level = "info"
timestamp = true
`

const yamlTemplate = `# cqcctl / mocknode configuration
client:
  app_id: 10
  host: 127.0.0.1
  port: 8803
  connect_timeout: 5s
  read_timeout: 10s
  write_timeout: 15s
  dial_attempts: 3
remote:
  app_id: 10
  host: 127.0.0.1
  port: 8804
node:
  listen:
    - 127.0.0.1:8803
    - 127.0.0.1:8804
  max_qubits: 0
  mailbox_size: 256
  metrics_addr: 127.0.0.1:9464
log:
  level: info
  timestamp: true
`
