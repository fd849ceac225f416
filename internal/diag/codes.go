package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Синтаксис файла деклараций
	SynInfo            Code = 2000
	SynUnexpectedToken Code = 2001
	SynIO              Code = 2002

	// Декларации
	DclInfo              Code = 3000
	DclUnknownConstraint Code = 3001
	DclConstraintCycle   Code = 3002
	DclSubtypeCycle      Code = 3003
	DclUnknownEffect     Code = 3004
	DclDuplicateParam    Code = 3005
	DclRegister          Code = 3006
	DclUnknownTypeVar    Code = 3007
	DclDuplicateEffect   Code = 3008

	// Унификация
	UniTypeMismatch        Code = 4001
	UniArityMismatch       Code = 4002
	UniInfiniteType        Code = 4003
	UniEffectMismatch      Code = 4004
	UniRecordFieldMismatch Code = 4005
	UniConstraintViolation Code = 4006
	UniDepthExceeded       Code = 4007

	// Диспетчеризация
	DspNoMethodFound     Code = 5001
	DspAmbiguousDispatch Code = 5002
	DspAmbiguousTrait    Code = 5003
	DspEffectNotAllowed  Code = 5004

	// Стабильность типов
	StbConflictingReturns         Code = 6001
	StbReturnMismatch             Code = 6002
	StbUndeterminedTypeVariable   Code = 6003
	StbUndeterminedEffectVariable Code = 6004
	StbEffectsExceedDeclaration   Code = 6005

	// Неоднозначность семейства
	AmbOverlap Code = 7001

	// Таблица времени выполнения
	RtdFingerprintCollision Code = 8001
	RtdUnresolved           Code = 8002
	RtdImage                Code = 8003
)

var codeDescription = map[Code]string{
	UnknownCode:                   "Unknown error",
	SynInfo:                       "Syntax information",
	SynUnexpectedToken:            "Unexpected token",
	SynIO:                         "Cannot read declaration file",
	DclInfo:                       "Declaration information",
	DclUnknownConstraint:          "Unknown constraint",
	DclConstraintCycle:            "Constraint hierarchy cycle",
	DclSubtypeCycle:               "Subtype cycle",
	DclUnknownEffect:              "Undeclared effect",
	DclDuplicateParam:             "Duplicate type parameter",
	DclRegister:                   "Invalid method declaration",
	DclUnknownTypeVar:             "Unknown type variable",
	DclDuplicateEffect:            "Duplicate effect declaration",
	UniTypeMismatch:               "Type mismatch",
	UniArityMismatch:              "Arity mismatch",
	UniInfiniteType:               "Infinite type",
	UniEffectMismatch:             "Effect mismatch",
	UniRecordFieldMismatch:        "Record field mismatch",
	UniConstraintViolation:        "Constraint violation",
	UniDepthExceeded:              "Unification depth exceeded",
	DspNoMethodFound:              "No method found",
	DspAmbiguousDispatch:          "Ambiguous dispatch",
	DspAmbiguousTrait:             "Ambiguous trait method",
	DspEffectNotAllowed:           "Effect not allowed",
	StbConflictingReturns:         "Conflicting return types",
	StbReturnMismatch:             "Return type mismatch",
	StbUndeterminedTypeVariable:   "Undetermined type variable",
	StbUndeterminedEffectVariable: "Undetermined effect variable",
	StbEffectsExceedDeclaration:   "Body effects exceed declaration",
	AmbOverlap:                    "Ambiguous method overlap",
	RtdFingerprintCollision:       "Fingerprint collision",
	RtdUnresolved:                 "Dynamic call cannot be resolved",
	RtdImage:                      "Runtime table image error",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("SYN%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("DCL%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("UNI%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("DSP%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("STB%04d", ic)
	case ic >= 7000 && ic < 8000:
		return fmt.Sprintf("AMB%04d", ic)
	case ic >= 8000 && ic < 9000:
		return fmt.Sprintf("RTD%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
