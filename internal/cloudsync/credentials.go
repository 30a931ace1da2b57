package cloudsync

import (
	"encoding/json"
	"fmt"
	"strings"

	"firelater-orchestrator/shared/cryptox"
)

// Credentials is the decrypted provider credential map. Field names are
// provider-specific; collectors validate what they need.
type Credentials map[string]string

func decodeCredentials(codec *cryptox.Codec, blob string) (Credentials, error) {
	raw, err := codec.Decrypt(blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

func (c Credentials) get(key string) string {
	return strings.TrimSpace(c[key])
}

// require reports every missing field at once; a missing credential is
// a configuration failure, not a retryable one.
func (c Credentials) require(fields ...string) error {
	var missing []string
	for _, f := range fields {
		if c.get(f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credential fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
