package tasks

import (
	"fmt"
	"strings"

	"github.com/JL710/workflowo/internal/logging"
	"github.com/JL710/workflowo/internal/sshclient"
	"github.com/JL710/workflowo/internal/workflow/fault"
)

// DefaultSSHPort is used for targets whose address carries no port.
// The CLI overrides it from configuration.
var DefaultSSHPort = "22"

// Target identifies an SSH-reachable host. Every remote task owns its
// own copy; connections are never shared between tasks.
type Target struct {
	Address  string
	User     string
	Password string
}

// dial opens a fresh connection to the target. The caller owns the
// returned client and must Close it.
func (t *Target) dial() (*sshclient.Client, error) {
	client := sshclient.New(t.User, t.Password, t.Address, DefaultSSHPort)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.Address, err)
	}
	return client, nil
}

// SSHCommand is one command of a batch together with the exit codes
// that count as success.
type SSHCommand struct {
	Command          string
	AllowedExitCodes []int
}

func NewSSHCommand(command string, allowedExitCodes []int) SSHCommand {
	return SSHCommand{Command: command, AllowedExitCodes: allowedExitCodes}
}

// SSHTask executes an ordered command batch over a single connection.
// The first command whose exit status is outside its allowed set
// aborts the rest of the batch.
type SSHTask struct {
	Target
	Commands []SSHCommand
}

func NewSSHTask(target Target, commands []SSHCommand) *SSHTask {
	return &SSHTask{Target: target, Commands: commands}
}

func (s *SSHTask) Execute() error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	for _, command := range s.Commands {
		logging.Debug("running remote command", map[string]interface{}{
			"addr":    s.Address,
			"command": command.Command,
		})
		output, exitCode, err := client.RunCommand(command.Command)
		if err != nil {
			return fmt.Errorf("failed to execute %q: %w", command.Command, err)
		}
		if !exitCodeAllowed(exitCode, command.AllowedExitCodes) {
			return fault.New(fault.ErrRemoteCommand, "command %q exited with code %d\n%s",
				command.Command, exitCode, strings.TrimRight(output, "\n"))
		}
	}
	return nil
}

func (s *SSHTask) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SSHTask{ address: %q, user: %q, password: %q, commands: [ ",
		s.Address, s.User, s.Password)
	for _, command := range s.Commands {
		fmt.Fprintf(&b, "{ command: %q, exit_codes: %v } ", command.Command, command.AllowedExitCodes)
	}
	b.WriteString("] }")
	return redact(b.String(), s.Password)
}
