package main

import (
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newServeFlags returns a fresh command with the serve flags, so tests do
// not share flag state through serveCmd.
func newServeFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().StringP("config", "c", "", "")
	cmd.Flags().String("root", "", "")
	cmd.Flags().Int("http-port", 0, "")
	cmd.Flags().Int("control-port", 0, "")
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}
	return cmd
}

func TestLoadServeConfig_Defaults(t *testing.T) {
	cfg, err := loadServeConfig(newServeFlags(t))
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.HTTPPort != 8088 || cfg.ControlPort != 8089 || cfg.Root != "public" {
		t.Errorf("cfg = %+v, want defaults", *cfg)
	}
}

func TestLoadServeConfig_FlagsOverrideFile(t *testing.T) {
	configPath := writeConfig(t, "devserve.yaml", `
http_port: 9000
control_port: 9001
root: from-file
`)

	cfg, err := loadServeConfig(newServeFlags(t, "-c", configPath, "--http-port", "7000", "--root", "from-flag"))
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.HTTPPort != 7000 {
		t.Errorf("HTTPPort = %d, want 7000", cfg.HTTPPort)
	}
	if cfg.ControlPort != 9001 {
		t.Errorf("ControlPort = %d, want 9001 from file", cfg.ControlPort)
	}
	if cfg.Root != "from-flag" {
		t.Errorf("Root = %q, want %q", cfg.Root, "from-flag")
	}
}

func TestLoadServeConfig_FlagsValidated(t *testing.T) {
	_, err := loadServeConfig(newServeFlags(t, "--http-port", "9000", "--control-port", "9000"))
	if err == nil {
		t.Fatal("loadServeConfig() expected error for equal ports, got nil")
	}
	if !strings.Contains(err.Error(), "must differ") {
		t.Errorf("error = %v, want ports must differ", err)
	}
}

func TestSiteRoot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("on disk"), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := fs.ReadFile(siteRoot(dir, discardLogger()), "index.html")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "on disk" {
		t.Errorf("index.html = %q, want the file on disk", data)
	}
}

func TestSiteRoot_FallsBackToBuiltIn(t *testing.T) {
	fsys := siteRoot(filepath.Join(t.TempDir(), "missing"), discardLogger())

	data, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "WebSocket") {
		t.Error("built-in index.html should contain the WebSocket client")
	}
}

func TestRunServe_BindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	configPath := writeConfig(t, "devserve.yaml", `
http_host: 127.0.0.1
control_host: 127.0.0.1
control_port: 0
`)

	_, err = executeCmd(t, "serve", "-c", configPath, "--http-port", strconv.Itoa(port), "--root", t.TempDir())
	if err == nil {
		t.Fatal("serve expected error for occupied port, got nil")
	}
	if !strings.Contains(err.Error(), "failed to bind http listener") {
		t.Errorf("error = %v, want bind failure", err)
	}
}

func TestRunStop_SendsShutdown(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	output, err := executeCmd(t, "stop", "--host", "127.0.0.1", "--control-port", strconv.Itoa(port))
	if err != nil {
		t.Fatalf("stop command error = %v", err)
	}
	if !strings.Contains(output, `sent "shutdown"`) {
		t.Errorf("output = %q, want confirmation", output)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if got := string(buf[:n]); got != "shutdown" {
		t.Errorf("datagram = %q, want %q", got, "shutdown")
	}
}

func TestRunStop_CustomPayload(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	if _, err := executeCmd(t, "stop", "--control-port", strconv.Itoa(port), "--payload", "ping"); err != nil {
		t.Fatalf("stop command error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if got := string(buf[:n]); got != "ping" {
		t.Errorf("datagram = %q, want %q", got, "ping")
	}
}

func TestRunStop_BadHost(t *testing.T) {
	_, err := executeCmd(t, "stop", "--host", "not a host", "--control-port", "9", "--timeout", "1s")
	if err == nil {
		t.Fatal("stop command expected error for invalid host, got nil")
	}
}
