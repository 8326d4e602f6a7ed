// Package logx configures autodesk's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, so unattended cron/systemd runs leave
//     a machine-readable trail next to the run history
package logx
