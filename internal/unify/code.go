package unify

import "mdisp/internal/diag"

var codes = [...]diag.Code{
	ErrTypeMismatch:        diag.UniTypeMismatch,
	ErrArityMismatch:       diag.UniArityMismatch,
	ErrInfiniteType:        diag.UniInfiniteType,
	ErrEffectMismatch:      diag.UniEffectMismatch,
	ErrRecordFieldMismatch: diag.UniRecordFieldMismatch,
	ErrConstraintViolation: diag.UniConstraintViolation,
	ErrDepthExceeded:       diag.UniDepthExceeded,
}

// Code maps the kind of a unification failure to its diagnostic code.
func (k ErrorKind) Code() diag.Code {
	if int(k) < len(codes) {
		return codes[k]
	}
	return diag.UnknownCode
}
