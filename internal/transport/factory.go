package transport

import (
	"fmt"
	"log/slog"

	"sitefeed/internal/metrics"
)

// Mode selects which transport New builds.
type Mode string

// Transport modes.
const (
	ModeAuto    Mode = "auto"
	ModeDirect  Mode = "direct"
	ModeBrowser Mode = "browser"
)

// Config selects and configures a transport.
type Config struct {
	Mode Mode
	// BrowserEndpoint is the websocket URL of a remote browser. In auto mode
	// its presence enables the rendering fallback.
	BrowserEndpoint string
	Direct          DirectConfig
	Rendered        RenderedConfig
}

// New builds the transport for cfg. In auto mode the direct transport is
// used alone unless a browser endpoint is configured, in which case blocked
// requests fall back to the browser.
func New(cfg Config, client HTTPClient, log *slog.Logger, m *metrics.Metrics) (Transport, error) {
	direct := NewDirect(client, cfg.Direct, log, m)
	rendered := func() *Rendered {
		return NewRendered(ChromeLauncher(cfg.BrowserEndpoint, direct.cfg.UserAgent), cfg.Rendered, log, m)
	}

	switch cfg.Mode {
	case ModeDirect:
		return direct, nil
	case ModeBrowser:
		return rendered(), nil
	case ModeAuto, "":
		if cfg.BrowserEndpoint == "" {
			return direct, nil
		}
		return NewFallback(direct, rendered(), log, m), nil
	}
	return nil, fmt.Errorf("unknown fetch mode %q", cfg.Mode)
}
