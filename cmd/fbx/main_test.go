package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSchema(t *testing.T, fbs string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.fbs")
	if err := os.WriteFile(path, []byte(fbs), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// runFBX runs the command in-process with the given args and input.
func runFBX(t *testing.T, input string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	exitCode = run(args, strings.NewReader(input), &outBuf, &errBuf, false)
	return outBuf.String(), errBuf.String(), exitCode
}

func TestRunExtractsRecords(t *testing.T) {
	msgSchema := "table Msg { value:int; } root_type Msg;"
	twoTables := "table Err { code:int; } table Msg { value:int; } root_type Msg;"

	tests := []struct {
		name    string
		schema  string
		args    []string
		input   string
		want    string
		wantErr string
	}{
		{
			name:   "whole document",
			schema: msgSchema,
			input:  `{"value":7}`,
			want:   "{\"value\":7}\n",
		},
		{
			name:   "message path",
			schema: msgSchema,
			args:   []string{"-path", "data"},
			input:  `{"junk":1,"data":{"value":7},"more":[2]}`,
			want:   "{\"value\":7}\n",
		},
		{
			name:   "wildcard path",
			schema: msgSchema,
			args:   []string{"-path", "items.*"},
			input:  `{"items":{"a":{"value":1},"b":{"value":2}}}`,
			want:   "{\"value\":1}\n{\"value\":2}\n",
		},
		{
			name:   "error path routing",
			schema: twoTables,
			args:   []string{"-path", "data", "-error-path", "error", "-error-table", "Err"},
			input:  `{"data":{"value":7},"error":{"code":9}}`,
			want:   "{\"value\":7}\nerror: {\"code\":9}\n",
		},
		{
			name:    "verbose fragments on stderr",
			schema:  msgSchema,
			args:    []string{"-v"},
			input:   `{"value":7}`,
			want:    "{\"value\":7}\n",
			wantErr: `fbx: message fragment: {"value":7}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"-schema", writeSchema(t, tt.schema)}, tt.args...)
			stdout, stderr, code := runFBX(t, tt.input, args...)
			if code != 0 {
				t.Fatalf("exit code %d, stderr: %s", code, stderr)
			}
			if stdout != tt.want {
				t.Errorf("stdout: expected %q, got %q", tt.want, stdout)
			}
			if tt.wantErr != "" && !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr: expected to contain %q, got %q", tt.wantErr, stderr)
			}
		})
	}
}

func TestRunFailures(t *testing.T) {
	schemaPath := writeSchema(t, "table Msg { value:int; } root_type Msg;")

	tests := []struct {
		name     string
		args     []string
		input    string
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing schema flag",
			args:     nil,
			wantCode: 1,
			wantErr:  "missing -schema",
		},
		{
			name:     "unreadable schema file",
			args:     []string{"-schema", filepath.Join(t.TempDir(), "nope.fbs")},
			wantCode: 1,
		},
		{
			name:     "unknown flag",
			args:     []string{"-schema", schemaPath, "-bogus"},
			wantCode: 2,
		},
		{
			name:     "malformed input",
			args:     []string{"-schema", schemaPath},
			input:    `{"value":`,
			wantCode: 1,
		},
		{
			name:     "shape mismatch",
			args:     []string{"-schema", schemaPath},
			input:    `{"value":"seven"}`,
			wantCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runFBX(t, tt.input, tt.args...)
			if code != tt.wantCode {
				t.Fatalf("exit code: expected %d, got %d (stderr: %s)", tt.wantCode, code, stderr)
			}
			if tt.wantErr != "" && !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr: expected to contain %q, got %q", tt.wantErr, stderr)
			}
		})
	}
}
