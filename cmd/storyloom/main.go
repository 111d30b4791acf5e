// Package main is the entry point for storyloom.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/azyu/storyloom/internal/app"
	"github.com/azyu/storyloom/internal/notify"
	"github.com/azyu/storyloom/internal/search"
	"github.com/azyu/storyloom/internal/storage"
	"github.com/azyu/storyloom/internal/token"
	"github.com/azyu/storyloom/internal/tui"
	"github.com/azyu/storyloom/pkg/types"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// closeTimeout bounds the final save on exit.
const closeTimeout = 10 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "storyloom",
	Short: "A local-first writing studio for novels",
	Long: `Storyloom keeps your manuscript, characters and worlds in a local
database. Edits are saved automatically, snapshots let you go back in time,
and projects can be exported to portable JSON, Markdown or HTML.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// openApp builds the application for one command.
func openApp(cmd *cobra.Command) (*app.App, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	a, err := app.New(cmd.Context(), app.Options{ConfigDir: configDir})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	for _, n := range a.Notices.Persistent() {
		printNotice(os.Stderr, n)
	}
	return a, nil
}

// withApp runs fn against a freshly opened app, then reports the
// notifications it produced and saves pending changes.
func withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		seen := len(a.Notices.Recent())

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			closeErr := a.Close(ctx)
			for _, n := range a.Notices.Recent()[seen:] {
				if !n.Persistent {
					printNotice(os.Stderr, n)
				}
			}
			if err == nil && closeErr != nil {
				err = fmt.Errorf("failed to close: %w", closeErr)
			}
		}()

		return fn(cmd, args, a)
	}
}

func printNotice(w io.Writer, n notify.Notification) {
	fmt.Fprintf(w, "%s %s\n", n.Level.Icon(), n.Message)
}

// confirm asks a yes/no question unless --yes was given.
func confirm(cmd *cobra.Command, title, description string) (bool, error) {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true, nil
	}

	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		fmt.Println("Cancelled.")
	}
	return ok, nil
}

func parseSnapshotID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid snapshot id %q", s)
	}
	return id, nil
}

// ============================================================================
// status / write
// ============================================================================

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the project and storage status",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		s, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Title:\t%s\n", s.Title)
		if s.Logline != "" {
			fmt.Fprintf(w, "Logline:\t%s\n", s.Logline)
		}
		fmt.Fprintf(w, "Sections:\t%d\n", s.Sections)
		fmt.Fprintf(w, "Characters:\t%d\n", s.Characters)
		fmt.Fprintf(w, "Worlds:\t%d\n", s.Worlds)
		fmt.Fprintf(w, "Words:\t%d\n", s.Words)
		fmt.Fprintf(w, "Tokens:\t~%d\n", estimateTokens(a.State.Project()))
		if s.Goal.TotalWordCount > 0 {
			goal := fmt.Sprintf("%d words (%.0f%%)", s.Goal.TotalWordCount, s.Progress*100)
			if s.Goal.TargetDate != nil {
				goal += " by " + *s.Goal.TargetDate
			}
			fmt.Fprintf(w, "Goal:\t%s\n", goal)
		}
		fmt.Fprintf(w, "Snapshots:\t%d\n", s.Snapshots)
		if s.LatestSnapshot != nil {
			fmt.Fprintf(w, "Latest snapshot:\t#%d %s (%s)\n", s.LatestSnapshot.ID, s.LatestSnapshot.Name,
				s.LatestSnapshot.Date.Local().Format(time.DateTime))
		}
		storageDesc := a.GlobalConfig().DataDir
		if a.MemoryOnly {
			storageDesc = "memory only (changes will be lost)"
		}
		fmt.Fprintf(w, "Storage:\t%s\n", storageDesc)
		return w.Flush()
	}),
}

// estimateTokens counts manuscript tokens, falling back to a character
// estimate when the tokenizer is unavailable.
func estimateTokens(p *types.ProjectData) int {
	counter, err := token.NewCounter("")
	if err == nil {
		return counter.ProjectTokens(p)
	}
	total := 0
	for _, s := range p.Manuscript {
		total += token.EstimateTokens(s.Content)
	}
	return total
}

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Open the manuscript editor",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		model := tui.New(a)
		defer model.Close()

		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}

		return a.RecordWritingHistory()
	}),
}

// ============================================================================
// snapshot
// ============================================================================

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create, list, restore and delete snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Snapshot the current project",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		name := strings.Join(args, " ")
		meta, err := a.CreateSnapshot(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), meta.ID)
		return nil
	}),
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		snaps, err := a.ListSnapshots(cmd.Context())
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots yet. Create one with: storyloom snapshot create [name]")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tWORDS\tNAME")
		for _, s := range snaps {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", s.ID, s.Date.Local().Format(time.DateTime), s.WordCount, s.Name)
		}
		return w.Flush()
	}),
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Replace the current project with a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseSnapshotID(args[0])
		if err != nil {
			return err
		}
		ok, err := confirm(cmd, fmt.Sprintf("Restore snapshot %d?", id),
			"The current project is replaced and undo history is cleared.")
		if err != nil || !ok {
			return err
		}
		return a.RestoreSnapshot(cmd.Context(), id)
	}),
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseSnapshotID(args[0])
		if err != nil {
			return err
		}
		ok, err := confirm(cmd, fmt.Sprintf("Delete snapshot %d?", id), "This cannot be undone.")
		if err != nil || !ok {
			return err
		}
		return a.DeleteSnapshot(cmd.Context(), id)
	}),
}

// ============================================================================
// reset / export / import
// ============================================================================

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new, empty project",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		title, _ := cmd.Flags().GetString("title")
		logline, _ := cmd.Flags().GetString("logline")

		if title == "" {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				form := huh.NewForm(
					huh.NewGroup(
						huh.NewInput().
							Title("Title").
							Placeholder(types.DefaultProjectData().Title).
							Value(&title),
						huh.NewText().
							Title("Logline").
							Placeholder("One sentence about your story").
							Value(&logline),
					),
				)
				if err := form.Run(); err != nil {
					return fmt.Errorf("project form failed: %w", err)
				}
			}
		}
		if strings.TrimSpace(title) == "" {
			title = types.DefaultProjectData().Title
		}

		ok, err := confirm(cmd, "Start a new project?",
			"The current project, its images and its undo history are discarded. Snapshots are kept.")
		if err != nil || !ok {
			return err
		}
		return a.ResetProject(cmd.Context(), strings.TrimSpace(title), strings.TrimSpace(logline))
	}),
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the project as JSON, Markdown or HTML",
	Long: `Export the project. Without a file the document is written to stdout.
JSON exports can be imported again; --inline-images embeds generated images
so the file is self-contained.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		format, _ := cmd.Flags().GetString("format")
		inline, _ := cmd.Flags().GetBool("inline-images")

		if len(args) == 0 {
			return a.ExportProject(cmd.Context(), cmd.OutOrStdout(), format, inline)
		}

		w, err := storage.NewAtomicWriter(args[0], 0644)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer w.Abort()

		if err := a.ExportProject(cmd.Context(), w, format, inline); err != nil {
			return err
		}
		if err := w.Commit(); err != nil {
			return fmt.Errorf("failed to write export file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", args[0])
		return nil
	}),
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the current project with an exported document",
	Long: `Import a JSON export, or a Markdown manuscript (.md) whose H1 is the
title and whose H2 headings start sections. The document is validated
completely before anything changes.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}

		ok, err := confirm(cmd, "Replace the current project?",
			"Undo history is cleared. Take a snapshot first if you may want it back.")
		if err != nil || !ok {
			return err
		}

		switch strings.ToLower(filepath.Ext(args[0])) {
		case ".md", ".markdown":
			return a.ImportManuscript(string(data))
		default:
			return a.ImportProject(cmd.Context(), data)
		}
	}),
}

// ============================================================================
// character / world
// ============================================================================

var characterCmd = &cobra.Command{
	Use:   "character",
	Short: "Manage characters",
}

var characterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List characters",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tROLE\tAVATAR")
		for _, c := range a.State.Project().Characters.SelectAll() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Role, yesNo(c.HasAvatar))
		}
		return w.Flush()
	}),
}

var characterAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a character",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		c := types.Character{Name: args[0]}
		c.Role, _ = cmd.Flags().GetString("role")
		c.Description, _ = cmd.Flags().GetString("description")
		c.Motivation, _ = cmd.Flags().GetString("motivation")

		id, err := a.AddCharacter(c)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}),
}

var characterRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a character and its avatar",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		ok, err := confirm(cmd, "Remove this character?", "Its avatar image is deleted too.")
		if err != nil || !ok {
			return err
		}
		return a.RemoveCharacter(cmd.Context(), args[0])
	}),
}

var worldCmd = &cobra.Command{
	Use:   "world",
	Short: "Manage worlds",
}

var worldListCmd = &cobra.Command{
	Use:   "list",
	Short: "List worlds",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tAMBIANCE")
		for _, wd := range a.State.Project().Worlds.SelectAll() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", wd.ID, wd.Name, yesNo(wd.HasAmbianceImage))
		}
		return w.Flush()
	}),
}

var worldAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a world",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		wd := types.World{Name: args[0]}
		wd.Description, _ = cmd.Flags().GetString("description")
		wd.Geography, _ = cmd.Flags().GetString("geography")
		wd.Culture, _ = cmd.Flags().GetString("culture")

		id, err := a.AddWorld(wd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}),
}

var worldRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a world and its ambiance image",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		ok, err := confirm(cmd, "Remove this world?", "Its ambiance image is deleted too.")
		if err != nil || !ok {
			return err
		}
		return a.RemoveWorld(cmd.Context(), args[0])
	}),
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ============================================================================
// search
// ============================================================================

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find text in the manuscript, outline, characters and worlds",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		filter, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		results, err := a.Search(strings.Join(args, " "), search.DefaultOptions().WithFilterType(filter).WithLimit(limit))
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
			return nil
		}

		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s (%s)\n", r.Document.SourceType, r.Document.Title, r.Document.ID)
			for _, h := range r.Highlights {
				fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", h)
			}
		}
		return nil
	}),
}

// ============================================================================
// generate
// ============================================================================

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate images for characters and worlds",
}

var generateAvatarCmd = &cobra.Command{
	Use:   "avatar <character-id> [prompt]",
	Short: "Generate a character portrait",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		return a.GenerateAvatar(cmd.Context(), args[0], strings.Join(args[1:], " "))
	}),
}

var generateAmbianceCmd = &cobra.Command{
	Use:   "ambiance <world-id> [prompt]",
	Short: "Generate a world ambiance image",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		return a.GenerateAmbiance(cmd.Context(), args[0], strings.Join(args[1:], " "))
	}),
}

func init() {
	rootCmd.PersistentFlags().String("config-dir", "", "Configuration directory (default $XDG_CONFIG_HOME/storyloom)")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "Do not ask for confirmation")

	resetCmd.Flags().String("title", "", "Title of the new project")
	resetCmd.Flags().String("logline", "", "Logline of the new project")

	exportCmd.Flags().StringP("format", "f", app.FormatJSON, "Export format: json, markdown or html")
	exportCmd.Flags().Bool("inline-images", false, "Embed generated images in JSON exports")

	searchCmd.Flags().StringP("type", "t", "", "Restrict to section, outline, character or world")
	searchCmd.Flags().IntP("limit", "n", search.DefaultOptions().Limit, "Maximum number of results")

	characterAddCmd.Flags().String("role", "", "Role in the story")
	characterAddCmd.Flags().String("description", "", "Physical and personality description")
	characterAddCmd.Flags().String("motivation", "", "What the character wants")

	worldAddCmd.Flags().String("description", "", "Overview of the world")
	worldAddCmd.Flags().String("geography", "", "Landscape and places")
	worldAddCmd.Flags().String("culture", "", "Peoples and customs")

	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotListCmd, snapshotRestoreCmd, snapshotDeleteCmd)
	characterCmd.AddCommand(characterListCmd, characterAddCmd, characterRemoveCmd)
	worldCmd.AddCommand(worldListCmd, worldAddCmd, worldRemoveCmd)
	generateCmd.AddCommand(generateAvatarCmd, generateAmbianceCmd)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(characterCmd)
	rootCmd.AddCommand(worldCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(configCmd)
}
