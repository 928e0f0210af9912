package commands_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mwantia/s3fs/cmd/s3fs/commands"
)

func execute(tst *testing.T, args ...string) (string, error) {
	tst.Setenv("S3FS_STORE_DRIVER", "memory")
	tst.Setenv("S3FS_LOG_LEVEL", "FATAL")

	var out bytes.Buffer
	root := commands.GetRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(tst.Context())
	return out.String(), err
}

func TestCommands_Version(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "s3fs dev") {
		t.Errorf("Unexpected version output %q", out)
	}
}

func TestCommands_Builtin(t *testing.T) {
	out, err := execute(t, "put", "--text", "hi", "notes.txt")
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if out != "notes.txt: wrote 2 B\n" {
		t.Errorf("Unexpected put output %q", out)
	}

	_, err = execute(t, "stat", "missing.txt")
	if err == nil {
		t.Fatalf("Expected stat of a missing file to fail")
	}
	if code := commands.ExitCode(err); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}

	if _, err := execute(t, "mv", "only-one"); commands.ExitCode(err) != 2 {
		t.Errorf("Expected usage error with exit code 2, got %v", err)
	}
}

func TestCommands_Help(t *testing.T) {
	out, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, name := range []string{"serve", "shell", "refresh", "url"} {
		if !strings.Contains(out, name) {
			t.Errorf("Expected %s in help output", name)
		}
	}
}
