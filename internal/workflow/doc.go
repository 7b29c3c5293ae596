// Package workflow holds the domain model shared by discovery and execution:
// descriptors, parameter schemas, execution results, the error taxonomy and
// the capability interfaces a loaded workflow must satisfy.
//
// Descriptors and parameters are immutable once constructed. A rescan
// produces new values rather than mutating existing ones.
package workflow
