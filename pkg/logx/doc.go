// Package logx configures swarmbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - console output readable (short timestamp + short caller)
//   - file output JSON-structured
//
// Loggers created from a Service follow later Service.Apply calls, so a
// config reload can change levels and sinks without rebuilding components.
package logx
