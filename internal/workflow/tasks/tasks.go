// Package tasks holds the executable task tree a parsed job document
// turns into. Every task kind implements the same contract: Execute
// runs the task and String renders a human-readable description with
// secrets redacted.
package tasks

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/JL710/workflowo/internal/logging"
	"github.com/JL710/workflowo/internal/util"
)

// Task is the unit of execution. Jobs are tasks themselves, so task
// trees compose.
type Task interface {
	fmt.Stringer
	Execute() error
}

// RedactionMarker replaces secret literals in rendered descriptions.
const RedactionMarker = "***REDACTED***"

// redact substitutes every occurrence of secret in text with the
// redaction marker. It is a plain text substitution on the rendered
// output, so any other field whose value equals the secret is redacted
// as well.
func redact(text, secret string) string {
	if secret == "" {
		return text
	}
	return strings.ReplaceAll(text, secret, RedactionMarker)
}

// Job is a named, ordered list of child tasks. It executes them
// sequentially and fails fast on the first child error.
type Job struct {
	Name     string
	children []Task
}

func NewJob(name string) *Job {
	return &Job{Name: name}
}

func (j *Job) AddChild(child Task) {
	j.children = append(j.children, child)
}

func (j *Job) Children() []Task {
	return j.children
}

func (j *Job) Execute() error {
	logging.Info("executing job", map[string]interface{}{"job": j.Name})
	for i, child := range j.children {
		if err := child.Execute(); err != nil {
			return fmt.Errorf("task %d of job %q failed: %w", i, j.Name, err)
		}
	}
	return nil
}

func (j *Job) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job{ name: %q, children: [ ", j.Name)
	for _, child := range j.children {
		b.WriteString(child.String())
		b.WriteString(" ")
	}
	b.WriteString("] }")
	return b.String()
}

// OS identifies the guard target of an OSDependent task.
type OS string

const (
	Windows OS = "windows"
	Linux   OS = "linux"
)

// OSDependent runs its children like a job, but only when the host OS
// matches the guard. On any other OS it is a silent no-op.
type OSDependent struct {
	os       OS
	children []Task
}

func NewOSDependent(os OS) *OSDependent {
	return &OSDependent{os: os}
}

func (o *OSDependent) AddChild(child Task) {
	o.children = append(o.children, child)
}

func (o *OSDependent) Execute() error {
	if runtime.GOOS != string(o.os) {
		return nil
	}
	for i, child := range o.children {
		if err := child.Execute(); err != nil {
			return fmt.Errorf("task %d of on-%s failed: %w", i, o.os, err)
		}
	}
	return nil
}

func (o *OSDependent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "OSDependent{ os: %q, children: [ ", o.os)
	for _, child := range o.children {
		b.WriteString(child.String())
		b.WriteString(" ")
	}
	b.WriteString("] }")
	return b.String()
}

// PrintTask writes its message to stdout and always succeeds.
type PrintTask struct {
	Message string
}

func NewPrintTask(message string) *PrintTask {
	return &PrintTask{Message: message}
}

func (p *PrintTask) Execute() error {
	util.Default.Println(p.Message)
	return nil
}

func (p *PrintTask) String() string {
	return fmt.Sprintf("PrintTask{ message: %q }", p.Message)
}
