package classifier

import "github.com/setevik/autoheal/internal/fault"

// defaultPatterns is the built-in table, in match order. More specific
// patterns come first: a missing module is also reported as ENOENT by some
// runtimes, so module-missing must be checked before file-missing.
var defaultPatterns = []Pattern{
	// Connection refused
	{Kind: fault.KindConnectionRefused, Expr: `ECONNREFUSED`},
	{Kind: fault.KindConnectionRefused, Expr: `(?i)connection refused`},

	// Module missing
	{Kind: fault.KindModuleMissing, Expr: `Cannot find module`},
	{Kind: fault.KindModuleMissing, Expr: `ModuleNotFoundError`},
	{Kind: fault.KindModuleMissing, Expr: `(?i)no module named`},
	{Kind: fault.KindModuleMissing, Expr: `MODULE_NOT_FOUND`},

	// Syntax error
	{Kind: fault.KindSyntaxError, Expr: `SyntaxError`},
	{Kind: fault.KindSyntaxError, Expr: `(?i)unexpected token`},
	{Kind: fault.KindSyntaxError, Expr: `(?i)parse error`},

	// Permission denied
	{Kind: fault.KindPermissionDenied, Expr: `EACCES`},
	{Kind: fault.KindPermissionDenied, Expr: `EPERM`},
	{Kind: fault.KindPermissionDenied, Expr: `(?i)permission denied`},

	// Out of memory
	{Kind: fault.KindOutOfMemory, Expr: `(?i)heap out of memory`},
	{Kind: fault.KindOutOfMemory, Expr: `ENOMEM`},
	{Kind: fault.KindOutOfMemory, Expr: `(?i)out of memory`},
	{Kind: fault.KindOutOfMemory, Expr: `oom-kill`},

	// Port conflict
	{Kind: fault.KindPortConflict, Expr: `EADDRINUSE`},
	{Kind: fault.KindPortConflict, Expr: `(?i)address already in use`},

	// Timeout
	{Kind: fault.KindTimeout, Expr: `ETIMEDOUT`},
	{Kind: fault.KindTimeout, Expr: `(?i)timed? ?out`},
	{Kind: fault.KindTimeout, Expr: `(?i)deadline exceeded`},

	// File missing
	{Kind: fault.KindFileMissing, Expr: `ENOENT`},
	{Kind: fault.KindFileMissing, Expr: `(?i)no such file or directory`},
}
