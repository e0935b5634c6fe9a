package app

import (
	"io"
	"strings"

	"delivery-orchestrator/internal/config"
	"delivery-orchestrator/internal/logx"
)

// NewLogger builds the process logger: slog JSON on w by default, zap on
// stderr with LOG_FORMAT=zap.
func NewLogger(cfg config.Log, w io.Writer) (logx.Logger, error) {
	if strings.EqualFold(cfg.Format, "zap") {
		return logx.NewZap(cfg.Level)
	}
	return logx.NewJSON(w, cfg.Level), nil
}
