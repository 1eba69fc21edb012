package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/export"
	"github.com/fyrsmithlabs/chatlog/internal/workspace"
)

const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

var (
	projectName    string
	workspacePath  string
	enrichFormat   string
	exportFormat   string
	projectsFormat string
	exportDir      string
	searchLimit    int
	saveWorkers    int
)

func init() {
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(exportCmd)

	for _, c := range []*cobra.Command{enrichCmd, saveCmd} {
		c.Flags().StringVarP(&projectName, "project", "p", "", "project name (defaults to the workspace or MCP_Chat_Logger)")
		c.Flags().StringVarP(&workspacePath, "workspace", "w", "", "git workspace whose uncommitted changes are attached")
	}
	saveCmd.Flags().IntVar(&saveWorkers, "workers", conversation.DefaultWorkers, "conversations assembled concurrently")
	enrichCmd.Flags().StringVarP(&enrichFormat, "format", "f", formatJSON, "output format: json or markdown")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", formatMarkdown, "output format: json or markdown")
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "", "write to a file in this directory instead of stdout")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 5, "maximum results")
	searchCmd.Flags().StringVarP(&projectName, "project", "p", "", "restrict results to one project")
	projectsCmd.Flags().StringVarP(&projectsFormat, "format", "f", "", "output format: json (default is a styled listing)")
}

// enrichCmd assembles a conversation without saving it
var enrichCmd = &cobra.Command{
	Use:   "enrich <file>",
	Short: "Classify and summarize a conversation without saving it",
	Long: `Read a conversation and print the enriched record.

The input is a JSON array of messages, an object with a "messages" field, or a
.jsonl transcript. Use - to read JSON from stdin.

Examples:
  # Enrich a transcript and print JSON
  chatlog enrich session.jsonl

  # Render as Markdown
  chatlog enrich --format markdown chat.json

  # From stdin
  cat chat.json | chatlog enrich -`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrich,
}

// saveCmd assembles and stores a conversation
var saveCmd = &cobra.Command{
	Use:   "save <file>...",
	Short: "Enrich conversations and save them to the logs directory",
	Long: `Read one or more conversations, enrich them and write them to the logs
directory. Files are assembled concurrently.

Examples:
  # Save a transcript under a project
  chatlog save --project billing session.jsonl

  # Save a directory of transcripts
  chatlog save ~/.claude/projects/myapp/*.jsonl

  # Attach uncommitted changes from a repository
  chatlog save --workspace . chat.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSave,
}

// projectsCmd lists saved conversations by project
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List saved conversations grouped by project",
	Long: `List saved conversations grouped by project, most recent first.

Examples:
  chatlog projects
  chatlog projects --format json`,
	Args: cobra.NoArgs,
	RunE: runProjects,
}

// searchCmd queries the semantic index
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search saved conversations by meaning",
	Long: `Search saved conversation titles and summaries.

Requires storage.index_enabled. The index is rebuilt from the logs directory
when it is empty.

Examples:
  chatlog search "login crash"
  chatlog search -k 10 --project billing "refund flow"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

// exportCmd renders a saved conversation
var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a saved conversation as Markdown or JSON",
	Long: `Render a saved conversation.

Examples:
  # Print Markdown
  chatlog export 3f2a9c

  # Write chat_<id>_<timestamp>.md into a directory
  chatlog export --out notes/ 3f2a9c`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func readRequest(cmd *cobra.Command, path string) (conversation.Request, error) {
	var (
		req conversation.Request
		err error
	)
	if path == "-" {
		data, readErr := io.ReadAll(cmd.InOrStdin())
		if readErr != nil {
			return req, fmt.Errorf("failed to read from stdin: %w", readErr)
		}
		req, err = conversation.DecodeRequest(data)
	} else {
		req, err = conversation.ReadRequest(path)
	}
	if err != nil {
		return req, err
	}
	if projectName != "" {
		req.Project = projectName
	}
	if workspacePath != "" {
		if req.Project == "" {
			req.Project = workspace.ProjectName(workspacePath)
		}
		changes, err := workspace.DetectChanges(workspacePath)
		if err != nil {
			return req, fmt.Errorf("reading workspace: %w", err)
		}
		req.WorkspaceChanges = changes
	}
	return req, nil
}

func runEnrich(cmd *cobra.Command, args []string) error {
	if err := checkFormat(enrichFormat); err != nil {
		return err
	}
	req, err := readRequest(cmd, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	reg, _, err := openRegistry(ctx, false)
	if err != nil {
		return err
	}
	defer reg.Close()

	rec, err := reg.Assembler().Assemble(ctx, req)
	if err != nil {
		return err
	}
	return writeRecord(cmd.OutOrStdout(), rec, enrichFormat)
}

func runSave(cmd *cobra.Command, args []string) error {
	reqs := make([]conversation.Request, 0, len(args))
	for _, path := range args {
		req, err := readRequest(cmd, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		reqs = append(reqs, req)
	}

	ctx := cmd.Context()
	reg, _, err := openRegistry(ctx, true)
	if err != nil {
		return err
	}
	defer reg.Close()

	records, err := reg.Assembler().AssembleBatch(ctx, reqs, saveWorkers)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, rec := range records {
		path, err := reg.Store().Save(ctx, rec)
		if err != nil {
			return err
		}
		fmt.Fprint(out, renderSaved(rec, path))
	}
	return nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	reg, _, err := openRegistry(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer reg.Close()

	ov, err := reg.Store().Overview()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if projectsFormat == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ov)
	}
	fmt.Fprint(out, renderOverview(ov))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, _, err := openRegistry(ctx, false)
	if err != nil {
		return err
	}
	defer reg.Close()

	st := reg.Store()
	if idx := st.Index(); idx != nil && idx.Count() == 0 {
		if _, err := st.Rebuild(ctx); err != nil {
			return fmt.Errorf("rebuilding search index: %w", err)
		}
	}
	hits, err := st.Search(ctx, args[0], searchLimit, projectName)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderHits(args[0], hits))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := checkFormat(exportFormat); err != nil {
		return err
	}
	reg, _, err := openRegistry(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer reg.Close()

	rec, err := reg.Store().Sink().Get(args[0])
	if err != nil {
		return err
	}

	if exportDir == "" {
		return writeRecord(cmd.OutOrStdout(), rec, exportFormat)
	}

	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", exportDir, err)
	}
	name := export.FileName(rec)
	if exportFormat == formatJSON {
		name = name[:len(name)-len(filepath.Ext(name))] + ".json"
	}
	path := filepath.Join(exportDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := writeRecord(f, rec, exportFormat); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), field("Exported", path))
	return nil
}

func checkFormat(format string) error {
	if format != formatJSON && format != formatMarkdown {
		return fmt.Errorf("unknown format %q (want %s or %s)", format, formatJSON, formatMarkdown)
	}
	return nil
}

func writeRecord(w io.Writer, rec *conversation.Record, format string) error {
	if format == formatMarkdown {
		return export.WriteMarkdown(w, rec)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
