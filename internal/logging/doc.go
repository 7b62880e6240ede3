// Package logging provides structured logging for pigeon-cfg.
//
// The package wraps a global zap logger that is silent by default, so CLI
// output stays clean unless the user asks for diagnostics through
// PIGEON_LOG_LEVEL or the --log-level flag.
//
// # Log Levels
//
//   - Debug: raw device responses, view-model state transitions
//   - Info: outbound device requests and their status
//   - Warn: failed requests, discovery problems
//   - Error: unexpected failures
//
// # Structured Logging
//
//	logging.Info("Settings applied",
//	    zap.String("address", "192.168.4.1"),
//	    zap.Int("status_code", 202),
//	)
//
// Device traffic has dedicated helpers:
//
//	logging.LogDeviceRequest("http://192.168.4.1", "GET", "/wifi/networks")
//	logging.LogDeviceResponse("http://192.168.4.1", "GET", "/wifi/networks", 200, elapsed)
//	logging.LogRawBytes("response body", body)
//
// # Configuration
//
//	if err := logging.Initialize(flagLevel); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Logs go to stderr so that command output on stdout (including --format json)
// can be piped.
package logging
