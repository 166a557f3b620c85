package domain

// AssetRole identifies which bundle file a downloaded asset is.
type AssetRole string

const (
	RolePrimary AssetRole = "primary"
	RoleCover   AssetRole = "cover"
)

// RejectReason is the specific reason a downloaded file failed
// validation. The orchestrator uses it to decide whether a retry is
// worthwhile.
type RejectReason string

const (
	ReasonMissingFile  RejectReason = "missing-file"
	ReasonSizeTooSmall RejectReason = "size-too-small"
	ReasonBadMagic     RejectReason = "bad-magic-bytes"
	ReasonUnplayable   RejectReason = "unplayable"
)

// ValidationResult is the outcome of inspecting a downloaded file.
type ValidationResult struct {
	OK     bool
	Reason RejectReason
	Size   int64
}

// Pass returns a passing result for a file of the given size.
func Pass(size int64) ValidationResult {
	return ValidationResult{OK: true, Size: size}
}

// Reject returns a failing result with the given reason.
func Reject(reason RejectReason, size int64) ValidationResult {
	return ValidationResult{OK: false, Reason: reason, Size: size}
}
