// Package logging configures slog for amanrecall.
//
// Interactive commands log warnings to stderr. With --debug, or when serving
// MCP over stdio, structured JSON logs go to a rotating file under
// ~/.amanrecall/logs/ so stdout stays reserved for results and protocol traffic.
package logging
