package core

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type ModuleKind int

const (
	ModuleSimple ModuleKind = iota
	ModuleDetailed
)

type Condition string

const (
	ConditionOr  Condition = "or"
	ConditionAnd Condition = "and"
)

// ModuleDescriptor is one entry of a tenant's allowed module list. Simple
// descriptors carry only a name. Absent add and edit permissions mean
// allowed.
type ModuleDescriptor struct {
	Kind           ModuleKind
	Name           string
	AddPermission  *bool
	EditPermission *bool
	AssignedFields []string
	Condition      Condition
}

func (m ModuleDescriptor) CanAdd() bool {
	return m.AddPermission == nil || *m.AddPermission
}

func (m ModuleDescriptor) CanEdit() bool {
	return m.EditPermission == nil || *m.EditPermission
}

// Matches compares names ignoring case and surrounding whitespace
func (m ModuleDescriptor) Matches(name string) bool {
	return sameName(m.Name, name)
}

// moduleRecord holds every alias a stored descriptor may use
type moduleRecord struct {
	ModuleName     string    `mapstructure:"moduleName"`
	Name           string    `mapstructure:"name"`
	Module         string    `mapstructure:"module"`
	AddPermission  *bool     `mapstructure:"addPermission"`
	EditPermission *bool     `mapstructure:"editPermission"`
	AssignedFields []string  `mapstructure:"assignedField"`
	Fields         []string  `mapstructure:"assignedFields"`
	Condition      Condition `mapstructure:"condition"`
}

func (r moduleRecord) name() string {
	for _, n := range [...]string{r.ModuleName, r.Name, r.Module} {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return ""
}

// parseModuleDescriptor resolves aliases once at ingestion
func parseModuleDescriptor(v any) (ModuleDescriptor, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return ModuleDescriptor{}, fmt.Errorf("empty module name")
		}
		return ModuleDescriptor{Kind: ModuleSimple, Name: s}, nil
	}

	var r moduleRecord
	if err := decode(v, &r); err != nil {
		return ModuleDescriptor{}, fmt.Errorf("module descriptor: %w", err)
	}

	name := r.name()
	if name == "" {
		return ModuleDescriptor{}, fmt.Errorf("module descriptor has no name")
	}

	return ModuleDescriptor{
		Kind:           ModuleDetailed,
		Name:           name,
		AddPermission:  r.AddPermission,
		EditPermission: r.EditPermission,
		AssignedFields: append(r.AssignedFields, r.Fields...),
		Condition:      parseCondition(r.Condition),
	}, nil
}

func parseModuleList(v any) ([]ModuleDescriptor, error) {
	var list []any
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []any:
		list = val
	default:
		list = []any{val}
	}

	mods := make([]ModuleDescriptor, 0, len(list))
	for i, item := range list {
		m, err := parseModuleDescriptor(item)
		if err != nil {
			return nil, fmt.Errorf("allowedModules[%d]: %w", i, err)
		}
		mods = append(mods, m)
	}
	return mods, nil
}

func parseCondition(c Condition) Condition {
	if strings.EqualFold(strings.TrimSpace(string(c)), string(ConditionAnd)) {
		return ConditionAnd
	}
	return ConditionOr
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// decode converts loosely typed stored documents into structs. Single
// values are accepted where lists are expected and strings where bools
// are expected.
func decode(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       permissionListHook,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
