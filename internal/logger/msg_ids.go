package logger

// Most non-error log messages are given a message ID that can be used to set
// the log level for that message. Errors do not get a message ID because you
// cannot turn errors into non-errors (otherwise the link would incorrectly
// succeed). Some internal log messages do not get a message ID because they
// are part of verbose and/or internal debugging output. These messages use
// "MsgID_None" instead.
type MsgID = uint8

const (
	MsgID_None MsgID = iota

	// Linking
	MsgID_Link_ImportIsUndefined
	MsgID_Link_ShimmedMissingExport
	MsgID_Link_EvalUsage
	MsgID_Link_CommonJSVariableInESM

	MsgID_END // Keep this at the end (used only for tests)
)

func StringToMsgIDs(str string, logLevel LogLevel, overrides map[MsgID]LogLevel) {
	switch str {
	case "import-is-undefined":
		overrides[MsgID_Link_ImportIsUndefined] = logLevel
	case "shimmed-missing-export":
		overrides[MsgID_Link_ShimmedMissingExport] = logLevel
	case "eval-usage":
		overrides[MsgID_Link_EvalUsage] = logLevel
	case "commonjs-variable-in-esm":
		overrides[MsgID_Link_CommonJSVariableInESM] = logLevel

	default:
		// Ignore invalid entries since this message id may have
		// been renamed/removed since when this code was written
	}
}

func MsgIDToString(id MsgID) string {
	switch id {
	case MsgID_Link_ImportIsUndefined:
		return "import-is-undefined"
	case MsgID_Link_ShimmedMissingExport:
		return "shimmed-missing-export"
	case MsgID_Link_EvalUsage:
		return "eval-usage"
	case MsgID_Link_CommonJSVariableInESM:
		return "commonjs-variable-in-esm"
	}

	return ""
}
