package config

import (
	"fmt"
	"os"
)

// Template returns an example client config file.
func Template() string {
	return clientTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(clientTemplate), 0o600)
}

const clientTemplate = `address = "127.0.0.1:8768"
# server_name = "server.s7s"
# uuid is normally taken from S7S_UUID
# uuid = ""
instance = "client"
flavor = "brightstone"
codec = "protobuf"
security_mode = "development"

tls_ca_file = ""
tls_mutual = false
tls_cert_file = ""
tls_key_file = ""
tls_insecure_skip_verify = false

connect_timeout = "10s"
handshake_timeout = "10s"
write_timeout = "15s"
request_timeout = "10s"

read_buffer_size = 4096
unclaimed_ttl = "30s"
max_unclaimed = 1024

max_connect_attempts = 5
backoff_initial = "250ms"
backoff_max = "5s"
backoff_multiplier = 2.0
backoff_jitter = true
`
