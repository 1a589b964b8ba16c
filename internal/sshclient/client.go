// Package sshclient wraps the SSH transport used by remote tasks:
// password-authenticated connections, exec channels with exit status
// capture, the SCP wire protocol for single-file copies and the SFTP
// subsystem for recursive transfers. One Client is dialed per task
// invocation; connections are never pooled.
package sshclient

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/JL710/workflowo/internal/logging"
	"github.com/JL710/workflowo/internal/workflow/fault"
)

// shellEscape escapes a string for safe single-quoted inclusion in a
// remote shell command.
func shellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// Client represents one SSH connection to a remote target.
type Client struct {
	client *ssh.Client
	config *ssh.ClientConfig
	host   string
	port   string
}

// New creates a client for the given target. Password is the only
// auth method; the job document carries it as a plain value.
func New(username, password, host, port string) *Client {
	config := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}
	return &Client{
		config: config,
		host:   host,
		port:   port,
	}
}

// Connect establishes the TCP connection, handshake and auth.
func (c *Client) Connect() error {
	addr := net.JoinHostPort(c.host, c.port)
	logging.Debug("dialing ssh", map[string]interface{}{"addr": addr, "user": c.config.User})
	client, err := ssh.Dial("tcp", addr, c.config)
	if err != nil {
		return fault.Wrap(fault.ErrRemoteConnect, err, "failed to dial %s", addr)
	}
	c.client = client
	return nil
}

// Close tears the connection down. Safe to call when Connect failed.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// RunCommand executes cmd on a fresh exec channel and returns the
// combined output and the remote exit status.
func (c *Client) RunCommand(cmd string) (string, int, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", 0, fault.Wrap(fault.ErrRemoteChannel, err, "failed to create session")
	}
	defer session.Close()

	output, err := session.CombinedOutput(cmd)
	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return string(output), exitErr.ExitStatus(), nil
		}
		return string(output), 0, fault.Wrap(fault.ErrRemoteChannel, err, "failed to run command")
	}
	return string(output), 0, nil
}

// SFTP opens the SFTP subsystem on the current connection.
func (c *Client) SFTP() (*sftp.Client, error) {
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, fault.Wrap(fault.ErrRemoteChannel, err, "could not create sftp subsystem")
	}
	return client, nil
}

// SCPUpload writes content to remotePath with the given permission
// bits by driving `scp -t` on the remote side over an exec channel.
func (c *Client) SCPUpload(content []byte, remotePath string, mode os.FileMode) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "failed to create session")
	}
	defer session.Close()

	stdin, stdout, stderr, err := sessionPipes(session)
	if err != nil {
		return err
	}

	targetDir := path.Dir(path.Clean(remotePath))
	if err := session.Start(fmt.Sprintf("scp -t %s", shellEscape(targetDir))); err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "failed to start scp on remote")
	}

	ack := ackReader(stdout, stderr)
	if err := ack(); err != nil {
		stdin.Close()
		session.Wait()
		return err
	}

	// file header: C<mode> <size> <filename>\n
	fmt.Fprintf(stdin, "C%04o %d %s\n", mode.Perm(), len(content), path.Base(remotePath))
	if err := ack(); err != nil {
		stdin.Close()
		session.Wait()
		return err
	}

	if _, err := stdin.Write(content); err != nil {
		stdin.Close()
		session.Wait()
		return fault.Wrap(fault.ErrRemoteChannel, err, "failed to send file data")
	}
	// trailing null byte terminates the file
	if _, err := stdin.Write([]byte{0}); err != nil {
		stdin.Close()
		session.Wait()
		return fault.Wrap(fault.ErrRemoteChannel, err, "failed to send scp terminator")
	}
	if err := ack(); err != nil {
		stdin.Close()
		session.Wait()
		return err
	}

	stdin.Close()
	if err := session.Wait(); err != nil {
		return fault.Wrap(fault.ErrRemoteChannel, err, "remote scp command failed")
	}
	return nil
}

// SCPDownload fetches remotePath into memory by driving `scp -f` on
// the remote side.
func (c *Client) SCPDownload(remotePath string) ([]byte, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fault.Wrap(fault.ErrRemoteChannel, err, "failed to create session")
	}
	defer session.Close()

	stdin, stdout, stderr, err := sessionPipes(session)
	if err != nil {
		return nil, err
	}

	remotePath = path.Clean(remotePath)
	if err := session.Start(fmt.Sprintf("scp -f %s", shellEscape(remotePath))); err != nil {
		return nil, fault.Wrap(fault.ErrRemoteChannel, err, "failed to start scp on remote")
	}

	writeNull := func() error {
		if _, err := stdin.Write([]byte{0}); err != nil {
			return fault.Wrap(fault.ErrRemoteChannel, err, "failed to write scp null byte")
		}
		return nil
	}
	fail := func(err error) ([]byte, error) {
		stdin.Close()
		session.Wait()
		return nil, err
	}

	// initial null starts the transfer
	if err := writeNull(); err != nil {
		return fail(err)
	}

	reader := bufio.NewReader(stdout)
	b, err := reader.ReadByte()
	if err != nil {
		return fail(fault.Wrap(fault.ErrRemoteChannel, err, "failed to read scp header byte"))
	}
	if b == 1 || b == 2 {
		return fail(fault.New(fault.ErrRemoteChannel, "scp remote error: %s", remoteMessage(stderr)))
	}
	if b != 'C' {
		return fail(fault.New(fault.ErrRemoteChannel, "unexpected scp header: %v", b))
	}

	// header format: <mode> <size> <filename>\n
	headerLine, err := reader.ReadString('\n')
	if err != nil {
		return fail(fault.Wrap(fault.ErrRemoteChannel, err, "failed to read scp header line"))
	}
	parts := strings.Fields(strings.TrimSpace(headerLine))
	if len(parts) < 3 {
		return fail(fault.New(fault.ErrRemoteChannel, "invalid scp header: %s", headerLine))
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fail(fault.Wrap(fault.ErrRemoteChannel, err, "invalid size in scp header"))
	}

	// ready to receive data
	if err := writeNull(); err != nil {
		return fail(err)
	}

	var content bytes.Buffer
	if _, err := io.CopyN(&content, reader, size); err != nil {
		return fail(fault.Wrap(fault.ErrRemoteChannel, err, "failed to copy file data"))
	}

	// the trailing byte must be a null acknowledging the data
	if ack, err := reader.ReadByte(); err != nil || ack != 0 {
		if err != nil {
			return fail(fault.Wrap(fault.ErrRemoteChannel, err, "failed after data copy"))
		}
		return fail(fault.New(fault.ErrRemoteChannel, "scp did not acknowledge data: %s", remoteMessage(stderr)))
	}
	if err := writeNull(); err != nil {
		return fail(err)
	}

	stdin.Close()
	if err := session.Wait(); err != nil {
		return nil, fault.Wrap(fault.ErrRemoteChannel, err, "remote scp command failed")
	}
	return content.Bytes(), nil
}

func sessionPipes(session *ssh.Session) (io.WriteCloser, io.Reader, io.Reader, error) {
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, nil, nil, fault.Wrap(fault.ErrRemoteChannel, err, "failed to get stdin pipe")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fault.Wrap(fault.ErrRemoteChannel, err, "failed to get stdout pipe")
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, nil, nil, fault.Wrap(fault.ErrRemoteChannel, err, "failed to get stderr pipe")
	}
	return stdin, stdout, stderr, nil
}

// ackReader reads single-byte SCP acknowledgements with a timeout so
// a wedged remote cannot block the task forever.
func ackReader(stdout, stderr io.Reader) func() error {
	return func() error {
		buf := make([]byte, 1)
		ch := make(chan error, 1)

		go func() {
			if _, err := stdout.Read(buf); err != nil {
				ch <- fault.Wrap(fault.ErrRemoteChannel, err, "failed to read scp ack")
				return
			}
			switch buf[0] {
			case 0:
				ch <- nil
			case 1, 2:
				ch <- fault.New(fault.ErrRemoteChannel, "scp remote error: %s", remoteMessage(stderr))
			default:
				ch <- fault.New(fault.ErrRemoteChannel, "unknown scp ack: %v", buf[0])
			}
		}()

		select {
		case err := <-ch:
			return err
		case <-time.After(10 * time.Second):
			return fault.New(fault.ErrRemoteChannel, "timeout waiting for scp ack")
		}
	}
}

func remoteMessage(stderr io.Reader) string {
	msg := make([]byte, 2048)
	n, _ := stderr.Read(msg)
	return strings.TrimSpace(string(msg[:n]))
}
