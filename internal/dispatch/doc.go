// Package dispatch sends Modbus commands to field devices over HTTP.
//
// A command is resolved to the device's endpoint through a directory, encoded
// in the text or binary form, and POSTed with a hard deadline:
//
//	text    POST http://{ip}:{port}/modbus-command  text/plain                MODBUS:s,f,a,v
//	binary  POST http://{ip}:{port}/modbus-binary   application/octet-stream  8-byte frame
//
// Every call returns a Result; failures are classified into fixed message
// shapes and never returned as Go errors. The dispatcher keeps no state
// between calls and never retries.
package dispatch
