// Package session implements the per-connection device protocol.
//
// A Handler moves through three phases:
//
//	AwaitingRegistration --Verify+Register--> Registered --Run returns--> Terminating
//
// In AwaitingRegistration the device must send a JSON identity document
// (heartbeats before it are skipped) before the caller's deadline. Register
// opens <output_dir>/<imei> for append and inserts the identity into the
// online registry; only then is the device visible as online.
//
// Run multiplexes three event sources, in priority order:
//
//  1. device input: HEARTBEAT resets the alarm; anything else is appended
//     to the log as "<RFC3339 timestamp> <payload>\n"
//  2. bus commands: written to the socket as "<payload>\n" when addressed
//     to this device
//  3. the heartbeat alarm, which ends the session
//
// Close is the one teardown path for every outcome.
//
// Wire framing is "line" (newline-delimited, the default) or "raw" (each
// socket read is a message).
package session
