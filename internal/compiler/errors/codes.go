package errors

// Diagnostic code constants organized by phase.
// RPC001-RPC099: loading and configuration
// RPC100-RPC199: method discovery
// RPC200-RPC299: type extraction
// RPC300-RPC399: resolution
// RPC400-RPC499: emission
const (
	// Loading and configuration (RPC001-RPC099)
	CodeMissingConfig   = "RPC001"
	CodeMissingManifest = "RPC002"
	CodeNoRoots         = "RPC003"
	CodeUnreadableFile  = "RPC004"
	CodeParseFailure    = "RPC005"

	// Method discovery (RPC100-RPC199)
	CodeOrphanMethod     = "RPC101" // method marker without controller marker
	CodeBadPattern       = "RPC102" // pattern lacks a module separator
	CodeDuplicatePattern = "RPC103"
	CodeBadSignature     = "RPC104" // more than one non-error result

	// Type extraction (RPC200-RPC299)
	CodeNameConflict    = "RPC201" // same type name, different declaration
	CodeVersionUnknown  = "RPC202" // manifest walk found no usable require entry
	CodeImportCollision = "RPC203" // same name imported from two packages

	// Resolution (RPC300-RPC399)
	CodeTypeCycle = "RPC301"

	// Emission (RPC400-RPC499)
	CodeOutputManifest = "RPC401" // no go.mod found above the output directory
)
