package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mm-zacharydavison/rpckit/internal/cli/config"
)

var (
	newModulePath string
	newOutputDir  string
)

var projectNameRx = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateProjectName validates project name with security checks
func validateProjectName(name string) error {
	name = strings.TrimSpace(name)

	if len(name) == 0 || len(name) > 100 {
		return fmt.Errorf("project name must be 1-100 characters")
	}

	if filepath.IsAbs(name) {
		return fmt.Errorf("project name cannot be an absolute path")
	}

	// The regex prevents dots, including "..".
	if !projectNameRx.MatchString(name) {
		return fmt.Errorf("project name can only contain letters, numbers, dashes, and underscores")
	}

	return nil
}

// NewNewCommand creates the new command
func NewNewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new [project-name]",
		Short: "Create a new rpckit workspace",
		Long: `Create a workspace with an rpckit.yml, a module manifest, and an example
controller to generate from.

If no project name is provided, you will be prompted to enter one.

Examples:
  rpckit new my-services
  rpckit new my-services --module example.com/my-services`,
		RunE: runNew,
	}

	cmd.Flags().StringVarP(&newModulePath, "module", "m", "", "Module path for the workspace go.mod")
	cmd.Flags().StringVarP(&newOutputDir, "output", "o", "gen/rpc", "Artifact output directory")

	return cmd
}

func runNew(cmd *cobra.Command, args []string) error {
	successColor := color.New(color.FgGreen, color.Bold)
	infoColor := color.New(color.FgCyan)

	var projectName string
	if len(args) > 0 {
		projectName = args[0]
	} else {
		prompt := &survey.Input{
			Message: "Project name:",
			Help:    "Directory to create; letters, numbers, dashes, underscores",
		}
		if err := survey.AskOne(prompt, &projectName, survey.WithValidator(func(ans interface{}) error {
			return validateProjectName(ans.(string))
		})); err != nil {
			return err
		}
	}
	if err := validateProjectName(projectName); err != nil {
		return err
	}

	if _, err := os.Stat(projectName); err == nil {
		return fmt.Errorf("directory %s already exists", projectName)
	}

	modulePath := newModulePath
	if modulePath == "" {
		prompt := &survey.Input{
			Message: "Module path:",
			Default: "example.com/" + projectName,
		}
		if err := survey.AskOne(prompt, &modulePath); err != nil {
			return err
		}
	}

	if err := writeWorkspace(projectName, modulePath, newOutputDir); err != nil {
		return err
	}

	successColor.Fprintf(cmd.OutOrStdout(), "Created workspace %s\n", projectName)
	infoColor.Fprintf(cmd.OutOrStdout(), "\nNext steps:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  cd %s\n", projectName)
	fmt.Fprintf(cmd.OutOrStdout(), "  rpckit generate\n")
	return nil
}

// writeWorkspace lays out the scaffold files.
func writeWorkspace(dir, modulePath, output string) error {
	files := map[string]string{
		config.DefaultFile: fmt.Sprintf(`roots:
  - .
output: %s
package: %s
watch:
  debounce_ms: 300
`, output, filepath.Base(output)),

		"go.mod": fmt.Sprintf("module %s\n\ngo 1.23\n", modulePath),

		filepath.Join("greeter", "service.go"): `package greeter

import "context"

// GreeterService says hello.
//rpc:controller
type GreeterService struct{}

// Hello greets a caller by name.
//rpc:method
func (s *GreeterService) Hello(ctx context.Context, name string) (Greeting, error) {
	return Greeting{Message: "hello " + name}, nil
}
`,

		filepath.Join("greeter", "types.go"): `package greeter

// Greeting is the reply to a Hello call.
type Greeting struct {
	Message string ` + "`json:\"message\"`" + `
}
`,
	}

	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
