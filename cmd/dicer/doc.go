// Package main hosts the Dicer CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into run
// orchestration: starting a variant run from a configuration file, resuming
// an interrupted or capped run, listing past runs, inspecting spend, and
// configuration scaffolding. It centralizes configuration resolution and
// structured logging setup so subcommands can focus on user experience
// instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
