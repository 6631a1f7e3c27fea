package nlu

import (
	"strconv"
	"strings"
)

type Role string

const (
	RoleOther     Role = ""
	RoleElement   Role = "el"
	RoleAttribute Role = "attr"
	RoleWord      Role = "word"
	RoleNumber    Role = "num"
	RoleColumns   Role = "columns"
	RoleOpNumber  Role = "op_num"
	RoleOpWord    Role = "op_word"
	RoleOrderBy   Role = "order_by"
	RoleAnd       Role = "and"
	RoleOr        Role = "or"
	RolePosition  Role = "position"
	RoleRelation  Role = "rel"
	RoleTitle     Role = "title"
	RolePhrase    Role = "phrase"
	RoleCategory  Role = "category"
)

var roleNames = map[string]Role{
	"el":         RoleElement,
	"element":    RoleElement,
	"attr":       RoleAttribute,
	"attribute":  RoleAttribute,
	"word":       RoleWord,
	"num":        RoleNumber,
	"number":     RoleNumber,
	"columns":    RoleColumns,
	"el_columns": RoleColumns,
	"op_num":     RoleOpNumber,
	"op_word":    RoleOpWord,
	"order_by":   RoleOrderBy,
	"and":        RoleAnd,
	"or":         RoleOr,
	"position":   RolePosition,
	"rel":        RoleRelation,
	"relation":   RoleRelation,
	"title":      RoleTitle,
	"phrase":     RolePhrase,
	"category":   RoleCategory,
}

// RoleTag is the parsed form of a classifier entity name such as "attr_1_2":
// a role, the 1-based concept index and an optional 1-based attribute index.
type RoleTag struct {
	Role           Role
	Name           string
	ConceptIndex   int
	AttributeIndex int
}

func (t RoleTag) HasConcept() bool {
	return t.ConceptIndex > 0
}

func (t RoleTag) HasAttribute() bool {
	return t.AttributeIndex > 0
}

// Slot is the "concept_attribute" key used by similar-slot groups.
func (t RoleTag) Slot() string {
	return strconv.Itoa(t.ConceptIndex) + "_" + strconv.Itoa(t.AttributeIndex)
}

// String renders the tag back into the classifier naming grammar.
func (t RoleTag) String() string {
	if t.Role == RoleOther {
		return t.Name
	}
	out := string(t.Role)
	if t.ConceptIndex > 0 {
		out += "_" + strconv.Itoa(t.ConceptIndex)
		if t.AttributeIndex > 0 {
			out += "_" + strconv.Itoa(t.AttributeIndex)
		}
	}
	return out
}

func Tag(role Role, conceptIndex, attributeIndex int) RoleTag {
	tag := RoleTag{Role: role, ConceptIndex: conceptIndex, AttributeIndex: attributeIndex}
	tag.Name = tag.String()
	return tag
}

// ParseRoleTag parses the `{role}_{concept}[_{attribute}]` grammar. Names
// outside the grammar keep their raw text with RoleOther.
func ParseRoleTag(raw string) RoleTag {
	name := strings.TrimSpace(raw)
	tag := RoleTag{Name: name}
	parts := strings.Split(name, "_")
	numbers := make([]int, 0, 2)
	for len(parts) > 1 && len(numbers) < 2 {
		value, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil || value < 0 {
			break
		}
		numbers = append([]int{value}, numbers...)
		parts = parts[:len(parts)-1]
	}
	role, ok := roleNames[strings.ToLower(strings.Join(parts, "_"))]
	if !ok {
		return tag
	}
	tag.Role = role
	if len(numbers) > 0 {
		tag.ConceptIndex = numbers[0]
	}
	if len(numbers) > 1 {
		tag.AttributeIndex = numbers[1]
	}
	return tag
}
