// Package types defines the shared domain model for queryflow: chunks and
// citations produced by the retrieval pipeline, conversation messages, tool
// tasks and results, feedback signals, and the unified error taxonomy used
// across all components.
package types
