// Package tools maps tool names to handlers and input schemas, resolves
// free-form tool names deterministically against the closed catalog (local
// tools first, then remote catalogs in fixed priority order), validates
// arguments, and fans out independent invocations through the parallel
// dispatcher with per-task failure isolation.
package tools
