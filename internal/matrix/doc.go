// Package matrix expands a validated run configuration into the ordered
// variant task set. The expansion is a pure function of configuration:
// the same offer, actors and variant counts always yield the same tasks
// with the same identifiers, which is what makes runs resumable.
package matrix
