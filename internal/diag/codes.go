package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Front end: declaration-set decoding.
	FrontInfo           Code = 1000
	FrontBadInput       Code = 1001
	FrontBadDecl        Code = 1002
	FrontDuplicateDecl  Code = 1003
	FrontUnknownTypeRef Code = 1004
	FrontBadTypeExpr    Code = 1005

	// Descriptor validation.
	ValInfo        Code = 2000
	ValUnsupported Code = 2001

	// Layout resolution.
	LayInfo            Code = 3000
	LayCycle           Code = 3001
	LayUnrepresentable Code = 3002
	LayUnknownType     Code = 3003

	// Calling convention mapping.
	ConvInfo               Code = 4000
	ConvAmbiguousOwnership Code = 4001

	// Bridge emission.
	EmitInfo     Code = 5000
	EmitInternal Code = 5001

	// Project and profile configuration.
	CfgInfo        Code = 6000
	CfgBadManifest Code = 6001
	CfgBadProfile  Code = 6002
)

var codeDescription = map[Code]string{
	UnknownCode: "unknown issue",

	FrontInfo:           "front end information",
	FrontBadInput:       "declaration set cannot be read",
	FrontBadDecl:        "malformed declaration",
	FrontDuplicateDecl:  "duplicate declaration identity",
	FrontUnknownTypeRef: "reference to an undeclared type",
	FrontBadTypeExpr:    "malformed type expression",

	ValInfo:        "validation information",
	ValUnsupported: "type outside the bridgeable subset",

	LayInfo:            "layout information",
	LayCycle:           "recursive value type has infinite size",
	LayUnrepresentable: "computed size exceeds the profile limit",
	LayUnknownType:     "type never resolved to a descriptor",

	ConvInfo:               "calling convention information",
	ConvAmbiguousOwnership: "ambiguous ownership or error-channel declaration",

	EmitInfo:     "emission information",
	EmitInternal: "internal consistency failure during emission",

	CfgInfo:        "configuration information",
	CfgBadManifest: "project manifest is invalid",
	CfgBadProfile:  "ABI profile is invalid",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("FRONT%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("VAL%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("LAY%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("CONV%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("EMIT%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("CFG%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
