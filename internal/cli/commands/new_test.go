package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mm-zacharydavison/rpckit/internal/cli/config"
)

func TestValidateProjectName(t *testing.T) {
	testCases := []struct {
		name        string
		projectName string
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid name",
			projectName: "my-services",
			expectError: false,
		},
		{
			name:        "valid name with underscores",
			projectName: "my_services",
			expectError: false,
		},
		{
			name:        "valid name alphanumeric",
			projectName: "services123",
			expectError: false,
		},
		{
			name:        "empty string",
			projectName: "",
			expectError: true,
			errorMsg:    "must be 1-100 characters",
		},
		{
			name:        "whitespace only",
			projectName: "   ",
			expectError: true,
			errorMsg:    "must be 1-100 characters",
		},
		{
			name:        "too long",
			projectName: strings.Repeat("a", 101),
			expectError: true,
			errorMsg:    "must be 1-100 characters",
		},
		{
			name:        "contains slash",
			projectName: "my/services",
			expectError: true,
			errorMsg:    "can only contain letters, numbers, dashes, and underscores",
		},
		{
			name:        "contains dot",
			projectName: "my.services",
			expectError: true,
			errorMsg:    "can only contain letters, numbers, dashes, and underscores",
		},
		{
			name:        "path traversal attempt",
			projectName: "../malicious",
			expectError: true,
			errorMsg:    "can only contain letters, numbers, dashes, and underscores",
		},
		{
			name:        "absolute path",
			projectName: "/usr/bin/malware",
			expectError: true,
			errorMsg:    "cannot be an absolute path",
		},
		{
			name:        "starts with dot",
			projectName: ".hidden",
			expectError: true,
			errorMsg:    "can only contain letters, numbers, dashes, and underscores",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateProjectName(tc.projectName)

			if tc.expectError {
				if err == nil {
					t.Errorf("expected error for project name %q, got nil", tc.projectName)
				} else if tc.errorMsg != "" && !strings.Contains(err.Error(), tc.errorMsg) {
					t.Errorf("expected error to contain %q, got %q", tc.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("expected no error for project name %q, got %v", tc.projectName, err)
				}
			}
		})
	}
}

func TestNewNewCommand(t *testing.T) {
	cmd := NewNewCommand()

	if cmd.Use != "new [project-name]" {
		t.Errorf("expected Use to be 'new [project-name]', got %s", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if cmd.Flags().Lookup("module") == nil {
		t.Error("expected --module flag to be registered")
	}

	if cmd.Flags().Lookup("output") == nil {
		t.Error("expected --output flag to be registered")
	}
}

func TestRunNew_DirectoryAlreadyExists(t *testing.T) {
	tmpDir := t.TempDir()

	existingDir := filepath.Join(tmpDir, "existing-services")
	if err := os.MkdirAll(existingDir, 0755); err != nil {
		t.Fatalf("failed to create test directory: %v", err)
	}

	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	cmd := NewNewCommand()
	err := runNew(cmd, []string{"existing-services"})

	if err == nil {
		t.Error("expected error when directory already exists, got nil")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected 'already exists' error, got: %v", err)
	}
}

func TestRunNew_InvalidProjectName(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	testCases := []struct {
		name        string
		projectName string
	}{
		{"empty name", ""},
		{"with slash", "my/services"},
		{"with dots", "my.services"},
		{"absolute path", "/tmp/services"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := NewNewCommand()
			err := runNew(cmd, []string{tc.projectName})

			if err == nil {
				t.Errorf("expected error for project name %q, got nil", tc.projectName)
			}
		})
	}
}

func TestRunNew_WritesScaffold(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	cmd := NewNewCommand()
	// Provide the module path up front so nothing prompts.
	newModulePath = "example.com/scaffolded"
	defer func() { newModulePath = "" }()
	cmd.SetOut(os.Stderr)
	if err := runNew(cmd, []string{"scaffolded"}); err != nil {
		t.Fatalf("runNew: %v", err)
	}

	for _, rel := range []string{
		config.DefaultFile,
		"go.mod",
		filepath.Join("greeter", "service.go"),
		filepath.Join("greeter", "types.go"),
	} {
		if _, err := os.Stat(filepath.Join(tmpDir, "scaffolded", rel)); err != nil {
			t.Errorf("expected scaffold file %s: %v", rel, err)
		}
	}

	// The scaffold config must load cleanly.
	cfg, err := config.Load(filepath.Join(tmpDir, "scaffolded", config.DefaultFile))
	if err != nil {
		t.Fatalf("loading scaffold config: %v", err)
	}
	if len(cfg.Roots) == 0 {
		t.Error("expected scaffold config to list roots")
	}

	mod, err := os.ReadFile(filepath.Join(tmpDir, "scaffolded", "go.mod"))
	if err != nil {
		t.Fatalf("reading scaffold go.mod: %v", err)
	}
	if !strings.Contains(string(mod), "module example.com/scaffolded") {
		t.Errorf("expected go.mod to declare module path, got:\n%s", mod)
	}
}
