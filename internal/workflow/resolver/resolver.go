// Package resolver rewrites the tagged nodes of a job document
// (!Input, !HiddenInput, !StrF, !Id) into plain strings before task
// parsing starts. The walk is depth-first over mapping values and
// sequence elements in document order, which fixes both the order of
// interactive prompts and which occurrence of a repeated !Id wins.
package resolver

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/JL710/workflowo/internal/workflow/fault"
)

const (
	tagInput       = "!Input"
	tagHiddenInput = "!HiddenInput"
	tagStrF        = "!StrF"
	tagID          = "!Id"
)

// Resolver carries the id cache shared across one resolution pass.
// A Resolver must not be reused for a second document.
type Resolver struct {
	ids map[string]*yaml.Node
	in  Interactor
}

func New(in Interactor) *Resolver {
	if in == nil {
		in = &StdInteractor{}
	}
	return &Resolver{
		ids: make(map[string]*yaml.Node),
		in:  in,
	}
}

// Resolve rewrites node in place. Afterwards no custom-tagged node is
// reachable from it.
func (r *Resolver) Resolve(node *yaml.Node) error {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := r.Resolve(child); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		if isCustomTag(node.Tag) {
			return r.resolveTagged(node)
		}
		if err := r.flattenMergeKeys(node); err != nil {
			return err
		}
		for i := 1; i < len(node.Content); i += 2 {
			if err := r.Resolve(node.Content[i]); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		if isCustomTag(node.Tag) {
			return r.resolveTagged(node)
		}
		for _, child := range node.Content {
			if err := r.Resolve(child); err != nil {
				return err
			}
		}
	case yaml.AliasNode:
		// dereference in place; the anchor target resolves to plain
		// nodes on its own visit, so double resolution cannot happen
		if err := r.Resolve(node.Alias); err != nil {
			return err
		}
		target := node.Alias
		*node = *copyNode(target)
	case yaml.ScalarNode:
		if isCustomTag(node.Tag) {
			return r.resolveTagged(node)
		}
	}
	return nil
}

func (r *Resolver) resolveTagged(node *yaml.Node) error {
	tag := node.Tag
	var err error
	switch tag {
	case tagInput:
		err = r.resolveInput(node, false)
	case tagHiddenInput:
		err = r.resolveInput(node, true)
	case tagStrF:
		err = r.resolveStrF(node)
	case tagID:
		err = r.resolveID(node)
	default:
		return fault.New(fault.ErrUnknownTag, "%s is not a valid tag", tag)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", tag, err)
	}
	return nil
}

// resolveStrF concatenates the resolved string elements of a sequence.
func (r *Resolver) resolveStrF(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fault.New(fault.ErrShape, "%s needs a sequence of strings", tagStrF)
	}
	var formatted string
	for _, child := range node.Content {
		if err := r.Resolve(child); err != nil {
			return err
		}
		if child.Kind != yaml.ScalarNode || child.Tag != "!!str" {
			return fault.New(fault.ErrShape, "%s element does not reduce to a string", tagStrF)
		}
		formatted += child.Value
	}
	setScalar(node, formatted)
	return nil
}

// resolveInput prompts the operator. The payload is resolved first so
// prompt and default may themselves be tagged.
func (r *Resolver) resolveInput(node *yaml.Node, hidden bool) error {
	untag(node)
	if err := r.Resolve(node); err != nil {
		return err
	}

	var prompt string
	var defaultValue string
	var hasDefault bool

	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag != "!!str" {
			return fault.New(fault.ErrShape, "prompt is not a valid string")
		}
		prompt = node.Value
	case yaml.SequenceNode:
		if len(node.Content) != 1 && len(node.Content) != 2 {
			return fault.New(fault.ErrShape, "input takes 1 or 2 arguments but got %d", len(node.Content))
		}
		if !isStringScalar(node.Content[0]) {
			return fault.New(fault.ErrShape, "prompt is not a valid string")
		}
		prompt = node.Content[0].Value
		if len(node.Content) == 2 {
			if !isStringScalar(node.Content[1]) {
				return fault.New(fault.ErrShape, "default value is not a valid string")
			}
			defaultValue = node.Content[1].Value
			hasDefault = true
		}
	case yaml.MappingNode:
		promptNode := mapEntry(node, "prompt")
		if promptNode == nil {
			return fault.New(fault.ErrMissingField, "prompt was not provided")
		}
		if !isStringScalar(promptNode) {
			return fault.New(fault.ErrShape, "prompt is not of type string")
		}
		prompt = promptNode.Value
		if defaultNode := mapEntry(node, "default"); defaultNode != nil {
			if !isStringScalar(defaultNode) {
				return fault.New(fault.ErrShape, "default is not of type string")
			}
			defaultValue = defaultNode.Value
			hasDefault = true
		}
	default:
		return fault.New(fault.ErrShape, "input payload is not a string, sequence or map")
	}

	var input string
	var err error
	if hidden {
		input, err = r.in.ReadSecret(prompt)
	} else {
		input, err = r.in.ReadLine(prompt)
	}
	if err != nil {
		return err
	}
	for len(input) > 0 && (input[len(input)-1] == '\n' || input[len(input)-1] == '\r') {
		input = input[:len(input)-1]
	}
	if hasDefault && input == "" {
		input = defaultValue
	}
	setScalar(node, input)
	return nil
}

// resolveID memoizes by id. The first occurrence in document order
// wins; later occurrences return the cached value without evaluating
// their own payload.
func (r *Resolver) resolveID(node *yaml.Node) error {
	var idNode, valueNode *yaml.Node
	switch node.Kind {
	case yaml.SequenceNode:
		if len(node.Content) < 1 {
			return fault.New(fault.ErrMissingField, "%s tag is missing its id", tagID)
		}
		if len(node.Content) < 2 {
			return fault.New(fault.ErrMissingField, "%s tag is missing its value", tagID)
		}
		idNode = node.Content[0]
		valueNode = node.Content[1]
	case yaml.MappingNode:
		idNode = mapEntry(node, "id")
		valueNode = mapEntry(node, "value")
		if idNode == nil {
			return fault.New(fault.ErrMissingField, "id key not given in id map")
		}
		if valueNode == nil {
			return fault.New(fault.ErrMissingField, "value key not given in id map")
		}
	default:
		return fault.New(fault.ErrShape, "%s value needs to be a map or sequence", tagID)
	}
	if !isStringScalar(idNode) {
		return fault.New(fault.ErrShape, "%s tag id is not of type string", tagID)
	}
	id := idNode.Value

	cached, ok := r.ids[id]
	if !ok {
		if err := r.Resolve(valueNode); err != nil {
			return err
		}
		cached = copyNode(valueNode)
		r.ids[id] = cached
	}
	*node = *copyNode(cached)
	return nil
}

// flattenMergeKeys splices `<<` merge entries into the mapping so
// anchors defined under the reserved IGNORE job can be reused.
// Explicit keys win over merged ones.
func (r *Resolver) flattenMergeKeys(node *yaml.Node) error {
	out := make([]*yaml.Node, 0, len(node.Content))
	var merged []*yaml.Node
	for i := 0; i < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Tag != "!!merge" {
			out = append(out, key, value)
			continue
		}
		sources := []*yaml.Node{value}
		if deref(value).Kind == yaml.SequenceNode {
			sources = deref(value).Content
		}
		for _, src := range sources {
			src = deref(src)
			if src.Kind != yaml.MappingNode {
				return fault.New(fault.ErrShape, "merge key value is not a mapping")
			}
			merged = append(merged, src.Content...)
		}
	}
	for i := 0; i < len(merged); i += 2 {
		if mapEntryIn(out, merged[i].Value) == nil {
			out = append(out, copyNode(merged[i]), copyNode(merged[i+1]))
		}
	}
	node.Content = out
	return nil
}

func deref(node *yaml.Node) *yaml.Node {
	if node.Kind == yaml.AliasNode {
		return node.Alias
	}
	return node
}

func isCustomTag(tag string) bool {
	return len(tag) > 1 && tag[0] == '!' && tag[1] != '!'
}

func isStringScalar(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!str"
}

// mapEntry returns the value node for key or nil.
func mapEntry(node *yaml.Node, key string) *yaml.Node {
	return mapEntryIn(node.Content, key)
}

func mapEntryIn(content []*yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(content); i += 2 {
		if content[i].Value == key {
			return content[i+1]
		}
	}
	return nil
}

// untag drops the custom tag so a recursive Resolve call treats the
// payload as a plain node.
func untag(node *yaml.Node) {
	switch node.Kind {
	case yaml.ScalarNode:
		node.Tag = "!!str"
	case yaml.SequenceNode:
		node.Tag = "!!seq"
	case yaml.MappingNode:
		node.Tag = "!!map"
	}
}

func setScalar(node *yaml.Node, value string) {
	node.Kind = yaml.ScalarNode
	node.Tag = "!!str"
	node.Value = value
	node.Content = nil
	node.Style = 0
}

func copyNode(node *yaml.Node) *yaml.Node {
	cp := *node
	if node.Content != nil {
		cp.Content = make([]*yaml.Node, len(node.Content))
		for i, child := range node.Content {
			cp.Content[i] = copyNode(child)
		}
	}
	return &cp
}
