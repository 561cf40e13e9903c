package wsbridge

import (
	"log/slog"
	"os"
	"strings"

	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

var wsDebug = func() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("BRIDGE_WS_DEBUG")))
	return v == "1" || v == "true" || v == "yes"
}()

// Frame types too chatty to dump even with BRIDGE_WS_DEBUG on.
var nologTypes = map[string]struct{}{
	protocol.TypeHealthCheck: {},
	protocol.TypePing:        {},
	protocol.TypePong:        {},
}

// debugFrame dumps raw traffic when BRIDGE_WS_DEBUG is set.
func debugFrame(log *slog.Logger, dir, frameType string, raw []byte) {
	if !wsDebug {
		return
	}
	if _, skip := nologTypes[frameType]; skip {
		return
	}
	log.Debug("ws frame", "dir", dir, "type", frameType, "raw", string(raw))
}
