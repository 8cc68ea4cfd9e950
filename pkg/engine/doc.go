// Package engine is the composition root of the gateway. It loads the YAML
// configuration, builds one Sender per configured provider through a factory
// registry, loads prompt templates and wires them into an Orchestrator.
// Frontends (the HTTP server, tests) talk to Engine and never construct the
// lower-level packages themselves.
package engine
