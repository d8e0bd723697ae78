// Package logx configures eusotrip's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional ops-alert sink (min-level + rate limiting)
package logx
