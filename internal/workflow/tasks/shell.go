package tasks

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/JL710/workflowo/internal/logging"
	"github.com/JL710/workflowo/internal/workflow/fault"
)

// shellTask is the shared body of Bash and Cmd: an argv, an optional
// working directory and the set of exit codes that count as success.
// A nil AllowedExitCodes means only 0 succeeds.
type shellTask struct {
	Args             []string
	WorkDir          string
	AllowedExitCodes []int
}

func (s *shellTask) run(name string, argv []string) error {
	cmd := exec.Command(name, argv...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}

	logging.Debug("running shell command", map[string]interface{}{
		"shell": name,
		"args":  strings.Join(s.Args, " "),
	})
	output, err := cmd.CombinedOutput()
	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return fault.Wrap(fault.ErrLocalIO, err, "failed to run %s", name)
		}
		exitCode = exitErr.ExitCode()
	}
	if !exitCodeAllowed(exitCode, s.AllowedExitCodes) {
		return fmt.Errorf("command %v exited with code %d\n%s",
			s.Args, exitCode, strings.TrimRight(string(output), "\n"))
	}
	return nil
}

func exitCodeAllowed(code int, allowed []int) bool {
	if allowed == nil {
		return code == 0
	}
	for _, a := range allowed {
		if a == code {
			return true
		}
	}
	return false
}

// Bash runs its arguments through `bash -c`.
type Bash struct {
	shellTask
}

func NewBash(args []string, workDir string, allowedExitCodes []int) *Bash {
	return &Bash{shellTask{Args: args, WorkDir: workDir, AllowedExitCodes: allowedExitCodes}}
}

func (b *Bash) Execute() error {
	return b.run("bash", []string{"-c", strings.Join(b.Args, " ")})
}

func (b *Bash) String() string {
	return fmt.Sprintf("Bash{ args: %v, work_dir: %q, exit_codes: %v }", b.Args, b.WorkDir, b.AllowedExitCodes)
}

// Cmd runs its arguments through the Windows `cmd /c` shell.
type Cmd struct {
	shellTask
}

func NewCmd(args []string, workDir string, allowedExitCodes []int) *Cmd {
	return &Cmd{shellTask{Args: args, WorkDir: workDir, AllowedExitCodes: allowedExitCodes}}
}

func (c *Cmd) Execute() error {
	return c.run("cmd", append([]string{"/c"}, c.Args...))
}

func (c *Cmd) String() string {
	return fmt.Sprintf("Cmd{ args: %v, work_dir: %q, exit_codes: %v }", c.Args, c.WorkDir, c.AllowedExitCodes)
}
