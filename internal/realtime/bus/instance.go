package bus

import (
	"os"

	"github.com/google/uuid"
)

// instanceName identifies this process on the relay channel.
func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "loomtrack"
	}
	return host + "-" + uuid.NewString()[:8]
}
