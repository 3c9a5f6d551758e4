// Package logging provides the leveled error log for the gateway.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions (upstream failures, slow filesystem)
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the process
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true. Output goes to stderr unless the
// ERROR_LOG destination is installed with [OpenErrorLog]. The access log is
// a separate stream owned by the middleware package.
package logging
