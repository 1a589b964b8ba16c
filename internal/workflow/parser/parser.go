// Package parser maps a resolved job document onto the typed task
// tree. It runs strictly after the resolution pass, so every node it
// sees is a plain mapping, sequence or scalar.
package parser

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JL710/workflowo/internal/workflow/fault"
	"github.com/JL710/workflowo/internal/workflow/resolver"
	"github.com/JL710/workflowo/internal/workflow/tasks"
)

// reservedJobName marks the top-level key used purely as anchor
// scratch space. It is parsed but never turned into a runnable job.
const reservedJobName = "IGNORE"

// JobsFromFile reads, resolves and parses a job document.
func JobsFromFile(filePath string, in resolver.Interactor) ([]*tasks.Job, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fault.Wrap(fault.ErrLocalIO, err, "failed to read file %q", filePath)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if err := resolver.New(in).Resolve(&root); err != nil {
		return nil, fmt.Errorf("failed to resolve document: %w", err)
	}
	return Jobs(&root)
}

// Jobs parses every top-level job of a resolved document.
func Jobs(root *yaml.Node) ([]*tasks.Job, error) {
	rootMap := documentMapping(root)
	if rootMap == nil {
		return nil, fault.New(fault.ErrShape, "document root is not a mapping")
	}

	var jobs []*tasks.Job
	for i := 0; i < len(rootMap.Content); i += 2 {
		name := rootMap.Content[i].Value
		if name == reservedJobName {
			continue
		}
		job, err := parseJob(rootMap, name)
		if err != nil {
			return nil, fmt.Errorf("parsing job %q failed: %w", name, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func documentMapping(root *yaml.Node) *yaml.Node {
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	return root
}

// parseJob looks a job up by name in the root mapping and parses its
// task sequence. Job back-references re-enter this function, so a job
// referencing itself recurses without bound.
func parseJob(rootMap *yaml.Node, name string) (*tasks.Job, error) {
	entry := mapEntry(rootMap, name)
	if entry == nil {
		return nil, fault.New(fault.ErrNotFound, "job %q not found", name)
	}
	if entry.Kind != yaml.SequenceNode {
		return nil, fault.New(fault.ErrShape, "child of %q is not a sequence", name)
	}

	job := tasks.NewJob(name)
	for _, child := range entry.Content {
		task, err := parseTask(rootMap, child)
		if err != nil {
			return nil, fmt.Errorf("error while parsing job %q: %w", name, err)
		}
		job.AddChild(task)
	}
	return job, nil
}

func parseTask(rootMap *yaml.Node, node *yaml.Node) (tasks.Task, error) {
	// a bare string is a reference to another job by name
	if isString(node) {
		job, err := parseJob(rootMap, node.Value)
		if err != nil {
			return nil, fmt.Errorf("parsing error for task %q: %w", node.Value, err)
		}
		return job, nil
	}

	if node.Kind != yaml.MappingNode || len(node.Content) < 2 {
		return nil, fault.New(fault.ErrShape, "task is not a mapping")
	}
	kind := node.Content[0].Value
	value := node.Content[1]

	switch kind {
	case "bash":
		task, err := parseShell(value, tasks.NewBash)
		if err != nil {
			return nil, fmt.Errorf("parsing error with bash task: %w", err)
		}
		return task, nil
	case "cmd":
		task, err := parseShell(value, tasks.NewCmd)
		if err != nil {
			return nil, fmt.Errorf("parsing error with cmd task: %w", err)
		}
		return task, nil
	case "on-windows":
		task, err := parseOSDependent(rootMap, tasks.Windows, value)
		if err != nil {
			return nil, fmt.Errorf("parsing error in on-windows: %w", err)
		}
		return task, nil
	case "on-linux":
		task, err := parseOSDependent(rootMap, tasks.Linux, value)
		if err != nil {
			return nil, fmt.Errorf("parsing error in on-linux: %w", err)
		}
		return task, nil
	case "ssh":
		task, err := parseSSH(value)
		if err != nil {
			return nil, fmt.Errorf("parsing error in ssh: %w", err)
		}
		return task, nil
	case "scp-download":
		return parseTransfer(value, kind, func(t tasks.Target, remote, local string) tasks.Task {
			return tasks.NewSCPDownload(t, remote, local)
		})
	case "scp-upload":
		return parseTransfer(value, kind, func(t tasks.Target, remote, local string) tasks.Task {
			return tasks.NewSCPUpload(t, remote, local)
		})
	case "sftp-download":
		return parseTransfer(value, kind, func(t tasks.Target, remote, local string) tasks.Task {
			return tasks.NewSFTPDownload(t, remote, local)
		})
	case "sftp-upload":
		return parseTransfer(value, kind, func(t tasks.Target, remote, local string) tasks.Task {
			return tasks.NewSFTPUpload(t, remote, local)
		})
	case "print":
		if !isString(value) {
			return nil, fault.New(fault.ErrShape, "print value is not a string")
		}
		return tasks.NewPrintTask(value.Value), nil
	case "parallel":
		task, err := parseParallel(rootMap, value)
		if err != nil {
			return nil, fmt.Errorf("parsing error in parallel task: %w", err)
		}
		return task, nil
	}
	return nil, fault.New(fault.ErrUnknownTask, "unrecognized task %q", kind)
}

// parseShell handles both the bare string shorthand and the mapping
// form of bash/cmd tasks. The command string splits on single spaces
// into argv; there is no quoting support.
func parseShell[T tasks.Task](value *yaml.Node, build func([]string, string, []int) T) (T, error) {
	var zero T
	if isString(value) {
		return build(splitCommand(value.Value), "", nil), nil
	}
	if value.Kind != yaml.MappingNode {
		return zero, fault.New(fault.ErrShape, "task is neither a string nor a mapping")
	}

	commandNode := mapEntry(value, "command")
	if commandNode == nil {
		return zero, fault.New(fault.ErrMissingField, "command is not given")
	}
	if !isString(commandNode) {
		return zero, fault.New(fault.ErrShape, "command is not a string")
	}

	workDir := ""
	if workDirNode := mapEntry(value, "work_dir"); workDirNode != nil {
		if !isString(workDirNode) {
			return zero, fault.New(fault.ErrShape, "work_dir is not a string")
		}
		workDir = workDirNode.Value
	}

	var exitCodes []int
	if exitCodesNode := mapEntry(value, "exit_codes"); exitCodesNode != nil {
		var err error
		exitCodes, err = parseExitCodes(exitCodesNode)
		if err != nil {
			return zero, err
		}
		if len(exitCodes) == 0 {
			return zero, fault.New(fault.ErrShape, "no exit codes are provided")
		}
	}

	return build(splitCommand(commandNode.Value), workDir, exitCodes), nil
}

func parseOSDependent(rootMap *yaml.Node, os tasks.OS, value *yaml.Node) (*tasks.OSDependent, error) {
	if value.Kind != yaml.SequenceNode {
		return nil, fault.New(fault.ErrShape, "value is not a sequence")
	}
	task := tasks.NewOSDependent(os)
	for _, child := range value.Content {
		childTask, err := parseTask(rootMap, child)
		if err != nil {
			return nil, fmt.Errorf("could not parse child task for on-%s: %w", os, err)
		}
		task.AddChild(childTask)
	}
	return task, nil
}

func parseSSH(value *yaml.Node) (*tasks.SSHTask, error) {
	target, err := parseTarget(value)
	if err != nil {
		return nil, err
	}

	commandsNode := mapEntry(value, "commands")
	if commandsNode == nil {
		return nil, fault.New(fault.ErrMissingField, "commands are not given")
	}
	if commandsNode.Kind != yaml.SequenceNode {
		return nil, fault.New(fault.ErrShape, "commands are not a sequence")
	}

	var commands []tasks.SSHCommand
	for _, item := range commandsNode.Content {
		command, err := parseSSHCommand(item)
		if err != nil {
			return nil, fmt.Errorf("parsing of ssh command failed: %w", err)
		}
		commands = append(commands, command)
	}
	return tasks.NewSSHTask(target, commands), nil
}

// parseSSHCommand accepts the bare string shorthand (success is exit
// code 0 only) or the long form
// `{command: {command: <string>, exit_codes: [<int>...]}}`.
func parseSSHCommand(node *yaml.Node) (tasks.SSHCommand, error) {
	var zero tasks.SSHCommand
	if isString(node) {
		return tasks.NewSSHCommand(node.Value, []int{0}), nil
	}
	if node.Kind != yaml.MappingNode {
		return zero, fault.New(fault.ErrShape, "command is not a string or mapping")
	}

	commandMap := mapEntry(node, "command")
	if commandMap == nil {
		return zero, fault.New(fault.ErrMissingField, "expected key 'command'")
	}
	if commandMap.Kind != yaml.MappingNode {
		return zero, fault.New(fault.ErrShape, "ssh command is not a map")
	}

	commandNode := mapEntry(commandMap, "command")
	if commandNode == nil {
		return zero, fault.New(fault.ErrMissingField, "ssh command missing key 'command'")
	}
	if !isString(commandNode) {
		return zero, fault.New(fault.ErrShape, "ssh command is not a string")
	}

	exitCodesNode := mapEntry(commandMap, "exit_codes")
	if exitCodesNode == nil {
		return zero, fault.New(fault.ErrMissingField, "ssh command missing key 'exit_codes'")
	}
	exitCodes, err := parseExitCodes(exitCodesNode)
	if err != nil {
		return zero, err
	}
	return tasks.NewSSHCommand(commandNode.Value, exitCodes), nil
}

// parseTransfer parses the shared configuration of all scp/sftp tasks.
func parseTransfer(value *yaml.Node, kind string, build func(tasks.Target, string, string) tasks.Task) (tasks.Task, error) {
	target, err := parseTarget(value)
	if err != nil {
		return nil, fmt.Errorf("parsing error in %s: %w", kind, err)
	}
	remotePath, err := requiredString(value, "remote_path")
	if err != nil {
		return nil, fmt.Errorf("parsing error in %s: %w", kind, err)
	}
	localPath, err := requiredString(value, "local_path")
	if err != nil {
		return nil, fmt.Errorf("parsing error in %s: %w", kind, err)
	}
	return build(target, remotePath, localPath), nil
}

func parseTarget(value *yaml.Node) (tasks.Target, error) {
	var zero tasks.Target
	if value.Kind != yaml.MappingNode {
		return zero, fault.New(fault.ErrShape, "value is not a mapping")
	}
	address, err := requiredString(value, "address")
	if err != nil {
		return zero, err
	}
	username, err := requiredString(value, "username")
	if err != nil {
		return zero, err
	}
	password, err := requiredString(value, "password")
	if err != nil {
		return zero, err
	}
	return tasks.Target{Address: address, User: username, Password: password}, nil
}

// parseParallel accepts either a bare task sequence (default worker
// count) or a mapping with optional threads and a required non-empty
// tasks sequence.
func parseParallel(rootMap *yaml.Node, value *yaml.Node) (*tasks.ParallelTask, error) {
	threads := tasks.DefaultThreads()
	var taskSeq *yaml.Node

	switch value.Kind {
	case yaml.SequenceNode:
		taskSeq = value
	case yaml.MappingNode:
		if threadsNode := mapEntry(value, "threads"); threadsNode != nil {
			n, err := parseInt(threadsNode)
			if err != nil {
				return nil, fault.New(fault.ErrShape, "threads value of parallel task is not a valid number")
			}
			threads = n
		}
		taskSeq = mapEntry(value, "tasks")
		if taskSeq == nil {
			return nil, fault.New(fault.ErrMissingField, "tasks was not provided to parallel task")
		}
		if taskSeq.Kind != yaml.SequenceNode {
			return nil, fault.New(fault.ErrShape, "tasks of parallel task is not a sequence")
		}
	default:
		return nil, fault.New(fault.ErrShape, "parallel task needs to be a sequence or mapping")
	}

	if len(taskSeq.Content) == 0 {
		return nil, fault.New(fault.ErrEmptyGroup, "task sequence has no entries")
	}

	var children []tasks.Task
	for _, item := range taskSeq.Content {
		child, err := parseTask(rootMap, item)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subtask of parallel task: %w", err)
		}
		children = append(children, child)
	}
	return tasks.NewParallelTask(children, threads), nil
}

func parseExitCodes(node *yaml.Node) ([]int, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fault.New(fault.ErrShape, "exit_codes is not a sequence")
	}
	codes := make([]int, 0, len(node.Content))
	for _, item := range node.Content {
		code, err := parseInt(item)
		if err != nil {
			return nil, fault.New(fault.ErrShape, "exit code %q is not a number", item.Value)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func parseInt(node *yaml.Node) (int, error) {
	if node.Kind != yaml.ScalarNode || node.Tag != "!!int" {
		return 0, fault.New(fault.ErrShape, "%q is not a number", node.Value)
	}
	return strconv.Atoi(node.Value)
}

func requiredString(node *yaml.Node, key string) (string, error) {
	entry := mapEntry(node, key)
	if entry == nil {
		return "", fault.New(fault.ErrMissingField, "%s is not given", key)
	}
	if !isString(entry) {
		return "", fault.New(fault.ErrShape, "%s is not a string", key)
	}
	return entry.Value, nil
}

// splitCommand splits on single spaces into argv; quoting is not
// supported.
func splitCommand(command string) []string {
	return strings.Split(command, " ")
}

func isString(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!str"
}

// mapEntry returns the value node stored under key, or nil.
func mapEntry(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
