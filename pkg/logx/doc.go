// Package logx configures resident's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - JSON output structured (one object per line, with the app name)
//   - Levels adjustable at runtime through Service.Apply
package logx
