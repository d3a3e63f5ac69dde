// Package audit implements async event dispatching for security-relevant
// operations.
//
// The package owns event buffering and sink delivery only. Deciding which
// events to emit, and writing the durable security log, belongs to the engine;
// sinks here are the streaming side channel (log files, in-process consumers).
package audit
