package resolver

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/JL710/workflowo/internal/workflow/fault"
)

// scriptedInteractor feeds canned answers and records every prompt it
// was shown.
type scriptedInteractor struct {
	lines         []string
	secrets       []string
	prompts       []string
	secretPrompts []string
}

func (s *scriptedInteractor) ReadLine(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", nil
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedInteractor) ReadSecret(prompt string) (string, error) {
	s.secretPrompts = append(s.secretPrompts, prompt)
	if len(s.secrets) == 0 {
		return "", nil
	}
	secret := s.secrets[0]
	s.secrets = s.secrets[1:]
	return secret, nil
}

func parseNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(src), &node); err != nil {
		t.Fatalf("failed to parse test yaml: %v", err)
	}
	return &node
}

// root unwraps the document node to the top-level value.
func root(t *testing.T, node *yaml.Node) *yaml.Node {
	t.Helper()
	if node.Kind != yaml.DocumentNode || len(node.Content) != 1 {
		t.Fatalf("expected single document node, got kind %v", node.Kind)
	}
	return node.Content[0]
}

func entry(t *testing.T, node *yaml.Node, key string) *yaml.Node {
	t.Helper()
	value := mapEntry(node, key)
	if value == nil {
		t.Fatalf("key %q not found in mapping", key)
	}
	return value
}

func TestStrFSimple(t *testing.T) {
	node := parseNode(t, "!StrF ['test', 'testa']")
	if err := New(&scriptedInteractor{}).Resolve(node); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got := root(t, node).Value; got != "testtesta" {
		t.Errorf("expected %q, got %q", "testtesta", got)
	}
}

func TestStrFNested(t *testing.T) {
	src := `
key1: !StrF ['test', 'testa']
key2:
  - !StrF ['a', !StrF ['b', 'c']]
key3:
  key3-1:
    - !StrF ['test', 'testa']
`
	node := parseNode(t, src)
	if err := New(&scriptedInteractor{}).Resolve(node); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	top := root(t, node)
	if got := entry(t, top, "key1").Value; got != "testtesta" {
		t.Errorf("key1: expected %q, got %q", "testtesta", got)
	}
	if got := entry(t, top, "key2").Content[0].Value; got != "abc" {
		t.Errorf("key2: expected %q, got %q", "abc", got)
	}
	if got := entry(t, entry(t, top, "key3"), "key3-1").Content[0].Value; got != "testtesta" {
		t.Errorf("key3: expected %q, got %q", "testtesta", got)
	}
}

func TestStrFNonSequence(t *testing.T) {
	node := parseNode(t, "!StrF 'not a sequence'")
	err := New(&scriptedInteractor{}).Resolve(node)
	if !errors.Is(err, fault.ErrShape) {
		t.Errorf("expected shape error, got %v", err)
	}
}

func TestStrFNonStringElement(t *testing.T) {
	node := parseNode(t, "!StrF ['a', 5]")
	err := New(&scriptedInteractor{}).Resolve(node)
	if !errors.Is(err, fault.ErrShape) {
		t.Errorf("expected shape error, got %v", err)
	}
}

func TestIdMemoization(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"list list", "key1: !Id ['id', 'First Value']\nkey2: !Id ['id', 'Second Value']"},
		{"map map", "key1: !Id {id: 'id', value: 'First Value'}\nkey2: !Id {id: 'id', value: 'Second Value'}"},
		{"list map", "key1: !Id ['id', 'First Value']\nkey2: !Id {id: 'id', value: 'Second Value'}"},
		{"map list", "key1: !Id {id: 'id', value: 'First Value'}\nkey2: !Id ['id', 'Second Value']"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			node := parseNode(t, test.src)
			if err := New(&scriptedInteractor{}).Resolve(node); err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			top := root(t, node)
			if got := entry(t, top, "key1").Value; got != "First Value" {
				t.Errorf("key1: expected %q, got %q", "First Value", got)
			}
			if got := entry(t, top, "key2").Value; got != "First Value" {
				t.Errorf("key2: expected first value to win, got %q", got)
			}
		})
	}
}

func TestIdCacheHitSkipsPayload(t *testing.T) {
	// the second occurrence must not evaluate its payload, so the
	// nested !Input must never prompt
	src := `
key1: !Id ['id', 'cached']
key2: !Id ['id', !Input 'should not prompt: ']
`
	in := &scriptedInteractor{lines: []string{"typed"}}
	node := parseNode(t, src)
	if err := New(in).Resolve(node); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(in.prompts) != 0 {
		t.Errorf("expected no prompts, got %v", in.prompts)
	}
	if got := entry(t, root(t, node), "key2").Value; got != "cached" {
		t.Errorf("expected cached value, got %q", got)
	}
}

func TestInputShapes(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		line     string
		expected string
	}{
		{"bare prompt", "!Input 'Enter: '", "x", "x"},
		{"default used on empty", `!Input ["Enter: ", "fallback"]`, "", "fallback"},
		{"default ignored on input", `!Input ["Enter: ", "fallback"]`, "x", "x"},
		{"trailing newline trimmed", "!Input 'Enter: '", "value\r\n", "value"},
		{"map with default", `!Input {prompt: "Enter: ", default: "fallback"}`, "", "fallback"},
		{"map without default", `!Input {prompt: "Enter: "}`, "", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			in := &scriptedInteractor{lines: []string{test.line}}
			node := parseNode(t, test.src)
			if err := New(in).Resolve(node); err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if got := root(t, node).Value; got != test.expected {
				t.Errorf("expected %q, got %q", test.expected, got)
			}
			if len(in.prompts) != 1 || in.prompts[0] != "Enter: " {
				t.Errorf("unexpected prompts: %v", in.prompts)
			}
		})
	}
}

func TestInputBadShape(t *testing.T) {
	node := parseNode(t, "!Input ['a', 'b', 'c']")
	err := New(&scriptedInteractor{}).Resolve(node)
	if !errors.Is(err, fault.ErrShape) {
		t.Errorf("expected shape error, got %v", err)
	}
}

func TestHiddenInputUsesSecretReader(t *testing.T) {
	in := &scriptedInteractor{secrets: []string{"hunter2"}}
	node := parseNode(t, "!HiddenInput 'Password: '")
	if err := New(in).Resolve(node); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got := root(t, node).Value; got != "hunter2" {
		t.Errorf("expected secret value, got %q", got)
	}
	if len(in.prompts) != 0 {
		t.Errorf("hidden input must not use the echoing reader, got prompts %v", in.prompts)
	}
	if len(in.secretPrompts) != 1 {
		t.Errorf("expected one secret prompt, got %v", in.secretPrompts)
	}
}

func TestHiddenInputDefault(t *testing.T) {
	in := &scriptedInteractor{secrets: []string{""}}
	node := parseNode(t, `!HiddenInput ["Password: ", "fallback"]`)
	if err := New(in).Resolve(node); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got := root(t, node).Value; got != "fallback" {
		t.Errorf("expected default applied on empty secret, got %q", got)
	}
}

func TestPromptOrderFollowsDocument(t *testing.T) {
	src := `
first: !Input 'one: '
second:
  - !Input 'two: '
third: !Input 'three: '
`
	in := &scriptedInteractor{lines: []string{"a", "b", "c"}}
	node := parseNode(t, src)
	if err := New(in).Resolve(node); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	expected := []string{"one: ", "two: ", "three: "}
	if len(in.prompts) != len(expected) {
		t.Fatalf("expected %d prompts, got %v", len(expected), in.prompts)
	}
	for i, prompt := range expected {
		if in.prompts[i] != prompt {
			t.Errorf("prompt %d: expected %q, got %q", i, prompt, in.prompts[i])
		}
	}
}

func TestUnknownTag(t *testing.T) {
	node := parseNode(t, "key: !Frobnicate 'value'")
	err := New(&scriptedInteractor{}).Resolve(node)
	if !errors.Is(err, fault.ErrUnknownTag) {
		t.Errorf("expected unknown tag error, got %v", err)
	}
}

func TestNoTaggedNodesRemain(t *testing.T) {
	src := `
a: !StrF ['x', 'y']
b:
  - !Id ['i', 'v']
  - !Id ['i', 'w']
c: plain
`
	node := parseNode(t, src)
	if err := New(&scriptedInteractor{}).Resolve(node); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if isCustomTag(n.Tag) {
			t.Errorf("custom tag %q survived resolution", n.Tag)
		}
		for _, child := range n.Content {
			walk(child)
		}
	}
	walk(node)
}

func TestAliasDereference(t *testing.T) {
	src := `
IGNORE:
  - &cmds stored
jobs:
  - *cmds
`
	node := parseNode(t, src)
	if err := New(&scriptedInteractor{}).Resolve(node); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	jobSeq := entry(t, root(t, node), "jobs")
	if got := jobSeq.Content[0].Value; got != "stored" {
		t.Errorf("expected alias to dereference to %q, got %q", "stored", got)
	}
	if jobSeq.Content[0].Kind != yaml.ScalarNode {
		t.Errorf("expected dereferenced scalar, got kind %v", jobSeq.Content[0].Kind)
	}
}

func TestMergeKeyFlattening(t *testing.T) {
	src := `
IGNORE:
  defaults: &defaults
    username: user
    password: secret
job:
  <<: *defaults
  username: override
`
	node := parseNode(t, src)
	if err := New(&scriptedInteractor{}).Resolve(node); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	job := entry(t, root(t, node), "job")
	if got := entry(t, job, "username").Value; got != "override" {
		t.Errorf("explicit key must win over merged, got %q", got)
	}
	if got := entry(t, job, "password").Value; got != "secret" {
		t.Errorf("merged key missing, got %q", got)
	}
}
