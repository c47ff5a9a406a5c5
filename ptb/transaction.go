package ptb

import (
	"github.com/weisyn/ptx-sdk-go/types"
)

// ProgrammableTransaction 冻结后的命令图（参数池 + 有序命令）
//
// 字段不导出，访问器返回副本，构建完成后无法再修改
type ProgrammableTransaction struct {
	inputs   []CallArg
	commands []Command
}

// Inputs 参数池副本
func (pt *ProgrammableTransaction) Inputs() []CallArg {
	out := make([]CallArg, len(pt.inputs))
	for i, in := range pt.inputs {
		if p, ok := in.(PureInput); ok {
			in = PureInput{Bytes: append([]byte(nil), p.Bytes...)}
		}
		out[i] = in
	}
	return out
}

// Commands 命令列表副本
func (pt *ProgrammableTransaction) Commands() []Command {
	out := make([]Command, len(pt.commands))
	for i, c := range pt.commands {
		out[i] = cloneCommand(c)
	}
	return out
}

// ObjectIDs 参数池中所有对象输入的 ID（按池顺序）
func (pt *ProgrammableTransaction) ObjectIDs() []types.ObjectID {
	var ids []types.ObjectID
	for _, in := range pt.inputs {
		if obj, ok := in.(ObjectInput); ok {
			ids = append(ids, obj.Object.ID())
		}
	}
	return ids
}

// SharedObjects 参数池中的共享对象输入
func (pt *ProgrammableTransaction) SharedObjects() []SharedObject {
	var out []SharedObject
	for _, in := range pt.inputs {
		if obj, ok := in.(ObjectInput); ok {
			if shared, ok := obj.Object.(SharedObject); ok {
				out = append(out, shared)
			}
		}
	}
	return out
}

// OwnedRefs 参数池中按完整引用使用的对象（独占 / 不可变 / 接收）
func (pt *ProgrammableTransaction) OwnedRefs() []types.ObjectRef {
	var out []types.ObjectRef
	for _, in := range pt.inputs {
		obj, ok := in.(ObjectInput)
		if !ok {
			continue
		}
		switch o := obj.Object.(type) {
		case OwnedObject:
			out = append(out, o.Ref)
		case ReceivingObject:
			out = append(out, o.Ref)
		}
	}
	return out
}
