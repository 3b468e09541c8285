// Package scriptgen talks to the chat-completion provider that produces
// reworded script variants.
package scriptgen
