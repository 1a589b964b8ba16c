package tasks

import (
	"fmt"
	"os"

	"github.com/JL710/workflowo/internal/workflow/fault"
)

// SCPDownload copies a single remote file to a local path using the
// SCP sub-protocol. The content is buffered fully in memory before the
// local file is written.
type SCPDownload struct {
	Target
	RemotePath string
	LocalPath  string
}

func NewSCPDownload(target Target, remotePath, localPath string) *SCPDownload {
	return &SCPDownload{Target: target, RemotePath: remotePath, LocalPath: localPath}
}

func (s *SCPDownload) Execute() error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	content, err := client.SCPDownload(s.RemotePath)
	if err != nil {
		return fmt.Errorf("failed to download %q: %w", s.RemotePath, err)
	}
	if err := os.WriteFile(s.LocalPath, content, 0o644); err != nil {
		return fault.Wrap(fault.ErrLocalIO, err, "failed to write local file %q", s.LocalPath)
	}
	return nil
}

func (s *SCPDownload) String() string {
	return redact(fmt.Sprintf("SCPDownload{ address: %q, user: %q, password: %q, remote_path: %q, local_path: %q }",
		s.Address, s.User, s.Password, s.RemotePath, s.LocalPath), s.Password)
}

// SCPUpload copies a single local file to a remote path using the SCP
// sub-protocol. The remote file is created with 0644 permissions.
type SCPUpload struct {
	Target
	RemotePath string
	LocalPath  string
}

func NewSCPUpload(target Target, remotePath, localPath string) *SCPUpload {
	return &SCPUpload{Target: target, RemotePath: remotePath, LocalPath: localPath}
}

func (s *SCPUpload) Execute() error {
	content, err := os.ReadFile(s.LocalPath)
	if err != nil {
		return fault.Wrap(fault.ErrLocalIO, err, "failed to read local file %q", s.LocalPath)
	}

	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SCPUpload(content, s.RemotePath, 0o644); err != nil {
		return fmt.Errorf("failed to upload to %q: %w", s.RemotePath, err)
	}
	return nil
}

func (s *SCPUpload) String() string {
	return redact(fmt.Sprintf("SCPUpload{ address: %q, user: %q, password: %q, remote_path: %q, local_path: %q }",
		s.Address, s.User, s.Password, s.RemotePath, s.LocalPath), s.Password)
}
