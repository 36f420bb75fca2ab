// Package command implements the module/command dispatch table behind
// /api/commands/{module}.
//
// A Module owns a closed set of command names and executes them against a
// decoded Payload. The Dispatcher resolves the module, validates the command
// name, runs the handler with panic recovery and wraps the Result in the
// response envelope. RunSuite replays every module fixture in-process and is
// reachable as cmd=selftest, from the CLI and from unit tests.
package command
