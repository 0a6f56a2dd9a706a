// Package logx configures rhythm's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Log level and sinks hot-swappable on config reload
package logx
