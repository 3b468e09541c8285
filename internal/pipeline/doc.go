// Package pipeline runs one task through its stages in fixed order,
// pairing every billable provider call with a cost reservation and
// persisting every stage transition before moving on.
package pipeline
