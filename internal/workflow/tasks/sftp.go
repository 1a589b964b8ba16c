package tasks

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"

	"github.com/JL710/workflowo/internal/logging"
	"github.com/JL710/workflowo/internal/workflow/fault"
)

// SFTPDownload mirrors a remote file or directory tree to a local
// path. Transfers are not resumable: the first failing file aborts the
// whole task and leaves the local tree partially populated.
type SFTPDownload struct {
	Target
	RemotePath string
	LocalPath  string
}

func NewSFTPDownload(target Target, remotePath, localPath string) *SFTPDownload {
	return &SFTPDownload{Target: target, RemotePath: remotePath, LocalPath: localPath}
}

func (s *SFTPDownload) Execute() error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	sftpClient, err := client.SFTP()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	stat, err := sftpClient.Stat(s.RemotePath)
	if err != nil {
		return fault.Wrap(fault.ErrNotFound, err, "remote path %q does not exist", s.RemotePath)
	}

	if !stat.IsDir() {
		target, err := downloadTarget(s.LocalPath, path.Base(s.RemotePath))
		if err != nil {
			return err
		}
		return downloadFile(sftpClient, target, s.RemotePath)
	}

	if err := checkDownloadDirTarget(s.LocalPath); err != nil {
		return err
	}
	if err := os.Mkdir(s.LocalPath, 0o755); err != nil {
		return fault.Wrap(fault.ErrLocalIO, err, "failed to create directory %q", s.LocalPath)
	}
	return downloadDir(sftpClient, s.LocalPath, s.RemotePath)
}

func (s *SFTPDownload) String() string {
	return redact(fmt.Sprintf("SFTPDownload{ address: %q, user: %q, password: %q, remote_path: %q, local_path: %q }",
		s.Address, s.User, s.Password, s.RemotePath, s.LocalPath), s.Password)
}

// downloadTarget decides where a single remote file lands locally:
// an existing local file is a conflict, an existing local directory
// receives the file under the remote base name, anything else is used
// as the destination path directly.
func downloadTarget(localPath, remoteBase string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return localPath, nil
	}
	if !info.IsDir() {
		return "", fault.New(fault.ErrAlreadyExists, "file %q already exists", localPath)
	}
	return filepath.Join(localPath, remoteBase), nil
}

// checkDownloadDirTarget validates the local destination of a remote
// directory download: it must not exist yet and its parent must.
func checkDownloadDirTarget(localPath string) error {
	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		return fault.New(fault.ErrAlreadyExists, "directory %q already exists", localPath)
	}
	parent := filepath.Dir(localPath)
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return fault.New(fault.ErrNotFound, "path %q does not exist", parent)
	}
	return nil
}

func downloadDir(client *sftp.Client, localPath, remotePath string) error {
	entries, err := client.ReadDir(remotePath)
	if err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "failed to read remote directory %q", remotePath)
	}
	for _, entry := range entries {
		local := filepath.Join(localPath, entry.Name())
		remote := path.Join(remotePath, entry.Name())
		if entry.IsDir() {
			if err := os.Mkdir(local, 0o755); err != nil {
				return fault.Wrap(fault.ErrLocalIO, err, "failed to create directory %q", local)
			}
			if err := downloadDir(client, local, remote); err != nil {
				return err
			}
		} else {
			if err := downloadFile(client, local, remote); err != nil {
				return err
			}
		}
	}
	return nil
}

// downloadFile transfers one file; the paths are assumed valid.
func downloadFile(client *sftp.Client, localPath, remotePath string) error {
	logging.Debug("sftp download", map[string]interface{}{"remote": remotePath, "local": localPath})
	remoteFile, err := client.Open(remotePath)
	if err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "could not open remote file %q", remotePath)
	}
	defer remoteFile.Close()

	localFile, err := os.Create(localPath)
	if err != nil {
		return fault.Wrap(fault.ErrLocalIO, err, "could not create local file %q", localPath)
	}
	defer localFile.Close()

	if _, err := remoteFile.WriteTo(localFile); err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "failed to transfer %q", remotePath)
	}
	return nil
}

// SFTPUpload mirrors a local file or directory tree to a remote path.
type SFTPUpload struct {
	Target
	RemotePath string
	LocalPath  string
}

func NewSFTPUpload(target Target, remotePath, localPath string) *SFTPUpload {
	return &SFTPUpload{Target: target, RemotePath: remotePath, LocalPath: localPath}
}

func (s *SFTPUpload) Execute() error {
	isDir, err := checkUploadSource(s.LocalPath)
	if err != nil {
		return err
	}

	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	sftpClient, err := client.SFTP()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if !isDir {
		return uploadFile(sftpClient, s.LocalPath, s.RemotePath)
	}

	if _, err := sftpClient.Stat(s.RemotePath); err == nil {
		return fault.New(fault.ErrAlreadyExists, "remote path %q already exists", s.RemotePath)
	}
	if err := mkdirRemote(sftpClient, s.RemotePath); err != nil {
		return err
	}
	return uploadDir(sftpClient, s.LocalPath, s.RemotePath)
}

func (s *SFTPUpload) String() string {
	return redact(fmt.Sprintf("SFTPUpload{ address: %q, user: %q, password: %q, remote_path: %q, local_path: %q }",
		s.Address, s.User, s.Password, s.RemotePath, s.LocalPath), s.Password)
}

// checkUploadSource validates that the local path exists and reports
// whether it is a directory.
func checkUploadSource(localPath string) (bool, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return false, fault.New(fault.ErrNotFound, "local path %q does not exist", localPath)
	}
	return info.IsDir(), nil
}

func mkdirRemote(client *sftp.Client, remotePath string) error {
	if err := client.Mkdir(remotePath); err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "could not create remote directory %q", remotePath)
	}
	if err := client.Chmod(remotePath, 0o774); err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "could not chmod remote directory %q", remotePath)
	}
	return nil
}

func uploadDir(client *sftp.Client, localPath, remotePath string) error {
	entries, err := os.ReadDir(localPath)
	if err != nil {
		return fault.Wrap(fault.ErrLocalIO, err, "failed to read directory %q", localPath)
	}
	for _, entry := range entries {
		local := filepath.Join(localPath, entry.Name())
		remote := path.Join(remotePath, entry.Name())
		if entry.IsDir() {
			if err := mkdirRemote(client, remote); err != nil {
				return err
			}
			if err := uploadDir(client, local, remote); err != nil {
				return err
			}
		} else {
			if err := uploadFile(client, local, remote); err != nil {
				return err
			}
		}
	}
	return nil
}

// uploadFile transfers one file; the paths are assumed valid.
func uploadFile(client *sftp.Client, localPath, remotePath string) error {
	logging.Debug("sftp upload", map[string]interface{}{"local": localPath, "remote": remotePath})
	localFile, err := os.Open(localPath)
	if err != nil {
		return fault.Wrap(fault.ErrLocalIO, err, "failed to open local file %q", localPath)
	}
	defer localFile.Close()

	remoteFile, err := client.Create(remotePath)
	if err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "could not create remote file %q", remotePath)
	}
	defer remoteFile.Close()

	if _, err := remoteFile.ReadFrom(localFile); err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "failed to transfer %q", localPath)
	}
	return nil
}
