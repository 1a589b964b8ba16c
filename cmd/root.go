package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/JL710/workflowo/internal/config"
	"github.com/JL710/workflowo/internal/logging"
	"github.com/JL710/workflowo/internal/util"
	"github.com/JL710/workflowo/internal/workflow/fault"
	"github.com/JL710/workflowo/internal/workflow/parser"
	"github.com/JL710/workflowo/internal/workflow/tasks"
)

var (
	jobFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "workflowo",
		Short: "Declarative job runner",
		Long:  `Runs named jobs from a YAML document: shell commands, remote SSH batches, SCP/SFTP transfers, OS-gated branches and parallel groups.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&jobFile, "file", "f", "jobs.yaml", "Job document path")
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration, initializes logging and parses the job
// document including the interactive resolution pass.
func setup() ([]*tasks.Job, error) {
	cfg := config.Load()
	logging.Init(os.Stderr, cfg.LogLevel, map[string]interface{}{"app": "workflowo"})
	tasks.DefaultSSHPort = cfg.SSHPort
	tasks.SetDefaultThreads(cfg.DefaultThreads)

	if err := validateJobFile(jobFile); err != nil {
		return nil, err
	}
	return parser.JobsFromFile(jobFile, nil)
}

// validateJobFile checks that the document exists, is a regular file
// and carries a yaml extension.
func validateJobFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s does not exist", path)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is not a file", path)
	}
	if ext := filepath.Ext(path); ext != ".yml" && ext != ".yaml" {
		return fmt.Errorf("%s is not a yaml file", path)
	}
	return nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [job]",
		Short: "Run a job from the document",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			jobs, err := setup()
			if err != nil {
				fail(err)
			}

			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				name, err = selectJob(jobs)
				if err != nil {
					fail(err)
				}
			}

			for _, job := range jobs {
				if verbose {
					util.Default.Println(job.String())
				}
				if job.Name != name {
					continue
				}
				util.Default.Printf("Executing job %s\n", job.Name)
				if err := job.Execute(); err != nil {
					fmt.Fprintf(os.Stderr, "Job failed:\n%s\n", fault.RenderChain(err))
					os.Exit(1)
				}
				return
			}
			fail(fmt.Errorf("job %q not found", name))
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the resolved job tree before executing")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List runnable jobs in the document",
		Run: func(cmd *cobra.Command, args []string) {
			jobs, err := setup()
			if err != nil {
				fail(err)
			}
			for _, job := range jobs {
				util.Default.Println(job.Name)
			}
		},
	}
}

// selectJob shows an interactive menu over the parsed job names.
func selectJob(jobs []*tasks.Job) (string, error) {
	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		names = append(names, job.Name)
	}
	prompt := promptui.Select{
		Label: "Select job",
		Items: names,
	}
	_, name, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("job selection aborted: %w", err)
	}
	return name, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error:\n%s\n", fault.RenderChain(err))
	os.Exit(1)
}
