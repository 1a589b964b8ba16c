package sshclient

import "testing"

func TestShellEscape(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"a'b", "'a'\\''b'"},
		{"", "''"},
		{"$HOME && rm -rf", "'$HOME && rm -rf'"},
	}
	for _, tc := range cases {
		if got := shellEscape(tc.in); got != tc.want {
			t.Errorf("shellEscape(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	c := New("alice", "secret", "10.0.0.5", "2222")
	if c.host != "10.0.0.5" || c.port != "2222" {
		t.Errorf("target not stored: %s:%s", c.host, c.port)
	}
	if c.config.User != "alice" {
		t.Errorf("user not stored: %s", c.config.User)
	}
	if c.config.Timeout == 0 {
		t.Error("expected a connect timeout")
	}
}
