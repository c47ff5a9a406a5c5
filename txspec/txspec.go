// Package txspec 从 HCL 文件加载声明式交易请求
//
// 文件由顶层属性（gas_budget、gas_coin、mode）、input 块和 command 块组成：
//
//	mode = "WaitForLocalExecution"
//
//	input "clock" {
//	  kind = "clock"
//	}
//
//	input "item" {
//	  kind  = "pure"
//	  type  = "bytes"
//	  value = filesha256("item.bin")
//	}
//
//	command "commit" {
//	  kind   = "move_call"
//	  target = "${var.package}::timestamp::commit_hash"
//	  args   = ["input.clock", "input.item"]
//	}
//
// 表达式可使用 var.<name>（由调用方传入）和 filesha256(path)（相对于规格文件所在目录）。
package txspec

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/weisyn/ptx-sdk-go/services/transaction"
	"github.com/weisyn/ptx-sdk-go/types"
	"github.com/weisyn/ptx-sdk-go/utils"
)

// Spec 解析后的交易规格
type Spec struct {
	Request *transaction.Request
	// Mode 为空表示由调用方决定
	Mode types.ConsistencyMode
}

// hclSpecFile 规格文件的顶层结构
type hclSpecFile struct {
	GasBudget *uint64       `hcl:"gas_budget,optional"`
	GasCoin   *string       `hcl:"gas_coin,optional"`
	Mode      *string       `hcl:"mode,optional"`
	Inputs    []*hclInput   `hcl:"input,block"`
	Commands  []*hclCommand `hcl:"command,block"`
}

type hclInput struct {
	Name    string  `hcl:"name,label"`
	Kind    string  `hcl:"kind"`
	Type    *string `hcl:"type,optional"`
	Value   *string `hcl:"value,optional"`
	ID      *string `hcl:"id,optional"`
	Mutable *bool   `hcl:"mutable,optional"`
}

type hclCommand struct {
	Name      string   `hcl:"name,label"`
	Kind      string   `hcl:"kind"`
	Target    *string  `hcl:"target,optional"`
	TypeArgs  []string `hcl:"type_args,optional"`
	Args      []string `hcl:"args,optional"`
	Amounts   []uint64 `hcl:"amounts,optional"`
	Recipient *string  `hcl:"recipient,optional"`
	ElemType  *string  `hcl:"elem_type,optional"`
}

// Load 读取并解析规格文件
func Load(path string, vars map[string]string) (*Spec, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", path, err)
	}
	return Parse(src, path, vars)
}

// Parse 解析规格内容；filename 用于诊断信息和 filesha256 的相对路径
func Parse(src []byte, filename string, vars map[string]string) (*Spec, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse spec %s: %w", filename, diags)
	}

	evalCtx, err := newEvalContext(filepath.Dir(filename), vars)
	if err != nil {
		return nil, err
	}

	var parsed hclSpecFile
	diags = gohcl.DecodeBody(file.Body, evalCtx, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode spec %s: %w", filename, diags)
	}

	spec, err := parsed.toSpec()
	if err != nil {
		return nil, fmt.Errorf("spec %s: %w", filename, err)
	}
	if err := spec.Request.Validate(); err != nil {
		return nil, fmt.Errorf("spec %s: %w", filename, err)
	}
	return spec, nil
}

func newEvalContext(baseDir string, vars map[string]string) (*hcl.EvalContext, error) {
	varVal := cty.EmptyObjectVal
	if len(vars) > 0 {
		v, err := gocty.ToCtyValue(vars, cty.Map(cty.String))
		if err != nil {
			return nil, fmt.Errorf("convert variables: %w", err)
		}
		varVal = v
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": varVal},
		Functions: map[string]function.Function{
			"filesha256": fileSHA256Func(baseDir),
		},
	}, nil
}

// fileSHA256Func filesha256(path)：文件内容的 SHA-256，0x 开头的十六进制
func fileSHA256Func(baseDir string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "path", Type: cty.String}},
		Type:   function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			path := args[0].AsString()
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			sum, err := utils.HashFile(path, nil)
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal("0x" + hex.EncodeToString(sum)), nil
		},
	})
}

func (f *hclSpecFile) toSpec() (*Spec, error) {
	req := &transaction.Request{}
	if f.GasBudget != nil {
		req.GasBudget = *f.GasBudget
	}
	if f.GasCoin != nil {
		id, err := types.ParseObjectID(*f.GasCoin)
		if err != nil {
			return nil, fmt.Errorf("gas_coin: %w", err)
		}
		req.GasCoin = &id
	}

	for _, in := range f.Inputs {
		input := transaction.Input{
			Name:    in.Name,
			Kind:    transaction.InputKind(in.Kind),
			Type:    deref(in.Type),
			Value:   deref(in.Value),
			Mutable: in.Mutable != nil && *in.Mutable,
		}
		if in.ID != nil {
			id, err := types.ParseObjectID(*in.ID)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", in.Name, err)
			}
			input.ObjectID = id
		}
		req.Inputs = append(req.Inputs, input)
	}

	for _, c := range f.Commands {
		req.Commands = append(req.Commands, transaction.Command{
			Name:      c.Name,
			Kind:      transaction.CommandKind(c.Kind),
			Target:    deref(c.Target),
			TypeArgs:  c.TypeArgs,
			Args:      c.Args,
			Amounts:   c.Amounts,
			Recipient: deref(c.Recipient),
			ElemType:  deref(c.ElemType),
		})
	}

	spec := &Spec{Request: req}
	if f.Mode != nil {
		spec.Mode = types.ConsistencyMode(*f.Mode)
		if !spec.Mode.Valid() {
			return nil, types.NewError(types.KindSubmission, types.CodeInvalidConsistencyMode, "unknown consistency mode %q", *f.Mode)
		}
	}
	return spec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
