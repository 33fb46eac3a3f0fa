package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pdportal/pd-portal/internal/application/command"
	"github.com/pdportal/pd-portal/internal/domain/shared"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session administration",
}

var sessionsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create sessions from a YAML file",
	Long: `Create every session listed in a YAML file.

Example file:
  sessions:
    - title: Formative assessment in practice
      presenter_name: R. Okafor
      location: Library, room 2
      session_date: "2026-11-03"
      start_time: "15:30"
      end_time: "17:00"
      capacity: 25
      publish: true`,
	Args: cobra.NoArgs,
	RunE: runSessionsImport,
}

func init() {
	sessionsImportCmd.Flags().StringP("file", "f", "", "YAML file to import (required)")
	sessionsImportCmd.Flags().String("created-by", "", "user ID recorded as the creator")
	sessionsImportCmd.Flags().Bool("dry-run", false, "validate the file without writing")
	_ = sessionsImportCmd.MarkFlagRequired("file")

	sessionsCmd.AddCommand(sessionsImportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// sessionFile is the import document.
type sessionFile struct {
	Sessions []sessionEntry `yaml:"sessions"`
}

type sessionEntry struct {
	Title         string `yaml:"title"`
	Description   string `yaml:"description,omitempty"`
	Location      string `yaml:"location,omitempty"`
	PresenterName string `yaml:"presenter_name,omitempty"`
	SessionDate   string `yaml:"session_date"`
	StartTime     string `yaml:"start_time"`
	EndTime       string `yaml:"end_time"`
	Capacity      *int   `yaml:"capacity,omitempty"`
	Publish       bool   `yaml:"publish"`
}

// parseSessionFile decodes an import document into create commands. Dates
// are read in the configured timezone.
func parseSessionFile(data []byte, createdBy shared.ID) ([]command.CreateSessionCommand, error) {
	var file sessionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Sessions) == 0 {
		return nil, fmt.Errorf("no sessions in file")
	}

	cmds := make([]command.CreateSessionCommand, 0, len(file.Sessions))
	for i, e := range file.Sessions {
		date, err := timeutil.ParseDate(e.SessionDate)
		if err != nil {
			return nil, fmt.Errorf("sessions[%d] %q: session_date: %w", i, e.Title, err)
		}
		cmds = append(cmds, command.CreateSessionCommand{
			Title:         e.Title,
			Description:   e.Description,
			Location:      e.Location,
			PresenterName: e.PresenterName,
			SessionDate:   date,
			StartTime:     e.StartTime,
			EndTime:       e.EndTime,
			Capacity:      e.Capacity,
			Publish:       e.Publish,
			CreatedBy:     createdBy,
		})
	}
	return cmds, nil
}

func runSessionsImport(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	createdByRaw, _ := cmd.Flags().GetString("created-by")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	infra, err := openInfra(cmd.Context())
	if err != nil {
		return err
	}
	defer infra.Close()

	var createdBy shared.ID
	if createdByRaw != "" {
		if createdBy, err = shared.ParseID(createdByRaw); err != nil {
			return fmt.Errorf("--created-by: %w", err)
		}
	}

	cmds, err := parseSessionFile(data, createdBy)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintf(out, "%d session(s) parsed, nothing written\n", len(cmds))
		return nil
	}

	create := command.NewCreateSessionHandler(infra.Repos.Sessions)
	for _, c := range cmds {
		s, err := create.Handle(cmd.Context(), c)
		if err != nil {
			return fmt.Errorf("create %q: %w", c.Title, err)
		}
		fmt.Fprintf(out, "created %s  %s  %s (%s)\n", s.ID, timeutil.FormatDateStr(s.SessionDate), s.Title, s.Status)
	}
	return nil
}
