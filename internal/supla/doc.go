// Package supla talks to supla-server, the component that actually reaches
// the user's devices.
//
// The wire protocol is line-oriented text over a unix socket: the server
// greets with "SUPLA SERVER CTRL", then accepts commands such as
//
//	SET-CHAR-VALUE:<user>,<device>,<channel>,<value>
//	SET-CG-CHAR-VALUE:<user>,<group>,<value>
//	IS-IODEV-CONNECTED:<user>,<device>
//
// and answers "OK:<id>", "CONNECTED:<id>" and friends. Client implements the
// Server interface over that socket; Fake is an in-memory implementation for
// tests, constructed per test with its own isolated state.
package supla
