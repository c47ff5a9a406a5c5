package ptb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/weisyn/ptx-sdk-go/types"
)

// TypeTag Move 类型标签（Primitive | VectorTag | StructTag）
type TypeTag interface {
	isTypeTag()
	String() string
}

// Primitive 基础类型，取值即线上枚举下标
type Primitive uint8

const (
	BoolTag    Primitive = 0
	U8Tag      Primitive = 1
	U64Tag     Primitive = 2
	U128Tag    Primitive = 3
	AddressTag Primitive = 4
	SignerTag  Primitive = 5
	U16Tag     Primitive = 8
	U32Tag     Primitive = 9
	U256Tag    Primitive = 10
)

var primitiveNames = map[Primitive]string{
	BoolTag:    "bool",
	U8Tag:      "u8",
	U16Tag:     "u16",
	U32Tag:     "u32",
	U64Tag:     "u64",
	U128Tag:    "u128",
	U256Tag:    "u256",
	AddressTag: "address",
	SignerTag:  "signer",
}

// VectorTag vector<Elem>
type VectorTag struct {
	Elem TypeTag
}

// StructTag address::module::Name<TypeParams>
type StructTag struct {
	Address    types.Address
	Module     string
	Name       string
	TypeParams []TypeTag
}

func (Primitive) isTypeTag() {}
func (VectorTag) isTypeTag() {}
func (StructTag) isTypeTag() {}

func (p Primitive) String() string {
	if name, ok := primitiveNames[p]; ok {
		return name
	}
	return fmt.Sprintf("primitive(%d)", uint8(p))
}

func (v VectorTag) String() string { return "vector<" + v.Elem.String() + ">" }

func (s StructTag) String() string {
	var sb strings.Builder
	sb.WriteString(s.Address.String())
	sb.WriteString("::")
	sb.WriteString(s.Module)
	sb.WriteString("::")
	sb.WriteString(s.Name)
	if len(s.TypeParams) > 0 {
		sb.WriteString("<")
		for i, p := range s.TypeParams {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.String())
		}
		sb.WriteString(">")
	}
	return sb.String()
}

var identifierPattern = regexp.MustCompile(`^(?:[A-Za-z][A-Za-z0-9_]*|_[A-Za-z0-9_]+)$`)

// IsValidIdentifier 是否为合法的 Move 标识符（模块名、函数名、结构体名）
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ParseTypeTag 解析类型标签字符串，如 "u64"、"vector<u8>"、"0x2::coin::Coin<0x2::sui::SUI>"
func ParseTypeTag(s string) (TypeTag, error) {
	p := &typeParser{src: s}
	tag, err := p.parseType()
	if err != nil {
		return nil, fmt.Errorf("invalid type tag %q: %w", s, err)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("invalid type tag %q: unexpected trailing %q", s, p.src[p.pos:])
	}
	return tag, nil
}

// MustTypeTag 解析类型标签，失败时 panic（仅用于常量）
func MustTypeTag(s string) TypeTag {
	tag, err := ParseTypeTag(s)
	if err != nil {
		panic(err)
	}
	return tag
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

// token 读取到下一个分隔符（< > , :）为止
func (p *typeParser) token() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("<>,: ", rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) expect(lit string) error {
	p.skipSpace()
	if !strings.HasPrefix(p.src[p.pos:], lit) {
		return fmt.Errorf("expected %q at offset %d", lit, p.pos)
	}
	p.pos += len(lit)
	return nil
}

func (p *typeParser) peek(lit string) bool {
	p.skipSpace()
	return strings.HasPrefix(p.src[p.pos:], lit)
}

func (p *typeParser) parseType() (TypeTag, error) {
	head := p.token()
	if head == "" {
		return nil, fmt.Errorf("expected type at offset %d", p.pos)
	}

	for prim, name := range primitiveNames {
		if head == name {
			return prim, nil
		}
	}

	if head == "vector" {
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		return VectorTag{Elem: elem}, nil
	}

	addr, err := types.ParseAddress(head)
	if err != nil {
		return nil, err
	}
	if err := p.expect("::"); err != nil {
		return nil, err
	}
	module := p.token()
	if !IsValidIdentifier(module) {
		return nil, fmt.Errorf("invalid module name %q", module)
	}
	if err := p.expect("::"); err != nil {
		return nil, err
	}
	name := p.token()
	if !IsValidIdentifier(name) {
		return nil, fmt.Errorf("invalid struct name %q", name)
	}

	tag := StructTag{Address: addr, Module: module, Name: name}
	if p.peek("<") {
		p.pos++
		for {
			param, err := p.parseType()
			if err != nil {
				return nil, err
			}
			tag.TypeParams = append(tag.TypeParams, param)
			if p.peek(",") {
				p.pos++
				continue
			}
			if err := p.expect(">"); err != nil {
				return nil, err
			}
			break
		}
	}
	return tag, nil
}
