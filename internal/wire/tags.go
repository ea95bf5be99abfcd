// Package wire implements the scope/taint wire codec (spec §6): a
// self-describing encoding that survives transfer between workers,
// degrading gracefully when it meets a variant tag it doesn't recognize.
package wire

// Tag is the stable numeric variant identifier written into every encoded
// Scope/Taint so a decoder on a different build can at least recognize
// which shape it's looking at, even if it can't resolve a user-registered
// type/taint tag to a concrete callback.
type Tag uint32

const (
	TagAny Tag = iota + 1
	TagTainted
	TagUnion
	TagNode
	TagProcess
	TagExact
	TagInvalid
)

const (
	TaintTagDefaultEnabled Tag = iota + 1
	TaintTagProcessorType
	TaintTagUser
)

const (
	ProcTagOSProc Tag = iota + 1
	ProcTagThreadProc
	ProcTagUser
)

// field keys used inside the structpb.Struct encoding of each variant.
const (
	fieldTag     = "tag"
	fieldInner   = "inner"
	fieldTaints  = "taints"
	fieldTaintT  = "t"
	fieldUserTag = "user_tag"
	fieldChrn    = "children"
	fieldUUID    = "uuid"
	fieldParent  = "parent"
	fieldWid     = "wid"
	fieldProc    = "proc"
	fieldPid     = "pid"
	fieldTid     = "tid"
	fieldLeft    = "left"
	fieldRight   = "right"
)
