package ocfl

import "fmt"

// Code identifies one entry in the OCFL validation-codes registry
// (https://ocfl.io/validation/validation-codes.html). The parser (§4.1) and
// validator (§4.6) both attribute every diagnostic to one of these.
type Code struct {
	Code        string // e.g. "E033"
	Description string
	URI         string
}

func (c Code) String() string { return c.Code }

func code(id, desc string) Code {
	return Code{Code: id, Description: desc, URI: "https://ocfl.io/1.1/spec/#" + id}
}

// Codes referenced directly by spec.md. This is a curated subset of the
// full OCFL validation-codes registry — just the codes this engine's
// parser and validator are documented to emit — rather than a verbatim
// reproduction of the ~150-entry spec table.
var (
	E001 = code("E001", "The OCFL Object Root must not contain files or directories other than those specified.")
	E003 = code("E003", "The version declaration must be a file in the base directory of the OCFL Object Root giving the OCFL version in the filename.")
	E004 = code("E004", "The version declaration filename must conform to the pattern 0=ocfl_object_<version>.")
	E007 = code("E007", "The text contents of the version declaration file must be the declared value followed by a newline.")
	E010 = code("E010", "The version number sequence must start at 1 and be continuous without missing integers.")
	E013 = code("E013", "Operations that add a new version must follow the version directory naming convention established by earlier versions.")
	E017 = code("E017", "The contentDirectory value must not contain the forward slash path separator.")
	E018 = code("E018", "The contentDirectory value must not be either one or two periods ('.' or '..').")
	E023 = code("E023", "Every file in a version content directory must be referenced in the manifest.")
	E024 = code("E024", "A content directory must not be empty.")
	E025 = code("E025", "The digestAlgorithm value must be sha512 or sha256.")
	E033 = code("E033", "An inventory file must not contain duplicate keys.")
	E038 = code("E038", "The type value must be the URI of one of the recognized OCFL inventory specification versions.")
	E040 = code("E040", "The value of head must be the same as the most recent version in the version directory.")
	E050 = code("E050", "Every digest in a version state must correspond to a digest in the manifest.")
	E052 = code("E052", "A logical path in a version state must not conflict with another logical path in the same state.")
	E053 = code("E053", "A logical path must not be listed more than once in a version state.")
	E060 = code("E060", "The inventory sidecar content must be in the form: digest, followed by two spaces, followed by the inventory filename.")
	E061 = code("E061", "The digest in the inventory sidecar must match the digest of the inventory.")
	E064 = code("E064", "The inventory of the HEAD version must be identical to the inventory in the OCFL Object Root.")
	E066 = code("E066", "The state of a prior version's inventory must be consistent with the corresponding state recorded in the root inventory.")
	E090 = code("E090", "Every file within a version content directory must be either a regular file or a directory.")
	E092 = code("E092", "Every manifest content path must resolve to an existing file.")
	E093 = code("E093", "Every fixity content path must resolve to an existing file.")
	E095 = code("E095", "A content path must not conflict with another content path in the manifest.")
	E099 = code("E099", "A content path must not contain the segments '.' or '..', nor be empty.")
	E100 = code("E100", "A content path must not be listed more than once in the manifest.")
	E101 = code("E101", "A content path must not conflict with another content path in the manifest (directory/file clash).")

	W004 = code("W004", "The digestAlgorithm should be sha512; sha256 is permitted but deprecated.")
	W005 = code("W005", "The id value should be a URI.")
	W011 = code("W011", "A prior version's message/user metadata is inconsistent with the root inventory's record of that version.")
	W000 = code("W000", "Inventory contains a field not recognized by this implementation.")
)

// Diagnostic attributes a parse or validation finding to a Code and a
// human-readable message. It carries no location of its own; the
// validator records the object root once per validation.Result.
type Diagnostic struct {
	Code    Code
	Message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("[%s] %s", d.Code.Code, d.Message)
}
