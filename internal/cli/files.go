package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/driveindex/drive-index/internal/api"
	"github.com/driveindex/drive-index/internal/config"
	"github.com/driveindex/drive-index/internal/diskspace"
	"github.com/driveindex/drive-index/internal/models"
	"github.com/driveindex/drive-index/internal/pathcodec"
	"github.com/driveindex/drive-index/internal/preview"
	"github.com/driveindex/drive-index/internal/progress"
	"github.com/driveindex/drive-index/internal/state"
	"github.com/driveindex/drive-index/internal/transfer"
)

// ErrFeatureDisabled is returned when the site configuration turns off a mutation.
var ErrFeatureDisabled = errors.New("disabled by site configuration")

// lookupFile opens the folder holding pathname and finds the named entry.
// A file missing from the listing yields an unresolved placeholder.
func lookupFile(sess *session, out io.Writer, ctrl *state.ListingController, pathname string) (pathcodec.Location, models.DriveFile, error) {
	loc, name, err := resolveFile(pathname, sess.cfg.DefaultDrive)
	if err != nil {
		return loc, models.DriveFile{}, err
	}

	ctx := GetContext()
	if err := openFolder(ctx, out, sess.prefs, ctrl, loc); err != nil {
		return loc, models.DriveFile{}, err
	}

	f, found, err := findEntry(ctx, ctrl, name)
	if err != nil {
		return loc, models.DriveFile{}, err
	}
	if !found {
		return loc, models.NewPlaceholder(name, preview.MimeTypeFor(name)), nil
	}
	return loc, f, nil
}

// checkSpace refuses a download whose known size does not fit at target.
func checkSpace(target string, f models.DriveFile) error {
	size, ok := f.SizeBytes()
	if !ok {
		return nil
	}
	return diskspace.Check(target, size, diskspace.DefaultMargin)
}

// newRenameCmd creates the 'rename' command.
func newRenameCmd() *cobra.Command {
	var fileID string

	cmd := &cobra.Command{
		Use:   "rename <pathname|--id ID> <new-name>",
		Short: "Rename a file or folder",
		Long: `Rename an entry on the drive.

Examples:
  drive-index rename /0:/docs/draft.txt final.txt
  drive-index rename --id 1AbC... final.txt --drive 1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			if !sess.cfg.EnableRename {
				return fmt.Errorf("rename: %w", ErrFeatureDisabled)
			}

			ctx := GetContext()
			out := cmd.OutOrStdout()
			ctrl := state.NewListingController(sess.client, nil, state.OptionsFromConfig(sess.cfg, GetLogger()))
			defer ctrl.Close()

			if fileID != "" {
				if len(args) != 1 {
					return fmt.Errorf("with --id, pass only the new name")
				}
				newName := args[0]
				if _, err := sess.client.RenameFile(ctx, sess.cfg.DefaultDrive, fileID, newName); err != nil {
					return fmt.Errorf("rename failed: %w", err)
				}
				fmt.Fprintf(out, "✓ Renamed %s to %s\n", fileID, newName)
				return nil
			}

			if len(args) != 2 {
				return fmt.Errorf("expected <pathname> <new-name>")
			}
			_, f, err := lookupFile(sess, cmd.ErrOrStderr(), ctrl, args[0])
			if err != nil {
				return err
			}
			if err := ctrl.Rename(ctx, sess.client, f.ID, args[1]); err != nil {
				return fmt.Errorf("rename failed: %w", err)
			}
			fmt.Fprintf(out, "✓ Renamed %s to %s\n", f.Name, args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&fileID, "id", "", "File ID to rename instead of a pathname")

	return cmd
}

// newRmCmd creates the 'rm' command.
func newRmCmd() *cobra.Command {
	var fileID string
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <pathname|--id ID>",
		Short: "Delete a file or folder",
		Long: `Delete an entry on the drive. Asks for confirmation unless --yes is set.

Examples:
  drive-index rm /0:/tmp/old.log
  drive-index rm --id 1AbC... --yes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileID == "" && len(args) == 0 {
				return fmt.Errorf("pass a pathname or --id")
			}

			sess, err := openSession()
			if err != nil {
				return err
			}
			if !sess.cfg.EnableDelete {
				return fmt.Errorf("delete: %w", ErrFeatureDisabled)
			}

			ctx := GetContext()
			out := cmd.OutOrStdout()
			ctrl := state.NewListingController(sess.client, nil, state.OptionsFromConfig(sess.cfg, GetLogger()))
			defer ctrl.Close()

			label := fileID
			byPath := fileID == ""
			if byPath {
				_, f, err := lookupFile(sess, cmd.ErrOrStderr(), ctrl, args[0])
				if err != nil {
					return err
				}
				fileID, label = f.ID, displayName(f)
			}

			if !yes {
				ok, err := promptConfirm(stdinReader(), out, fmt.Sprintf("Delete %s?", label))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Cancelled")
					return nil
				}
			}

			if byPath {
				err = ctrl.Delete(ctx, sess.client, fileID)
			} else {
				err = sess.client.DeleteFile(ctx, sess.cfg.DefaultDrive, fileID)
			}
			if err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Fprintf(out, "✓ Deleted %s\n", label)
			return nil
		},
	}

	cmd.Flags().StringVar(&fileID, "id", "", "File ID to delete instead of a pathname")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var output string
	var parallel int

	cmd := &cobra.Command{
		Use:   "download <pathname>...",
		Short: "Download files",
		Long: `Download the raw bytes of one or more files.

With several pathnames the files are fetched in parallel into the
directory named by --output (default: the current directory).

Examples:
  drive-index download /0:/docs/report.pdf
  drive-index download "/1:/Media/clip 01.mp4" -o clip.mp4
  drive-index download /0:/notes.txt -o - | less
  drive-index download /0:/a.iso /0:/b.iso -o ~/Downloads -j 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			if parallel <= 0 {
				parallel = sess.cfg.ParallelDownloads
			}

			ctx := GetContext()
			if output == "-" {
				if len(args) > 1 {
					return fmt.Errorf("--output - takes a single file")
				}
				loc, name, err := resolveFile(args[0], sess.cfg.DefaultDrive)
				if err != nil {
					return err
				}
				_, err = sess.client.Download(ctx, loc.Drive, loc.Path, name, cmd.OutOrStdout(), nil)
				return err
			}

			ctrl := state.NewListingController(sess.client, nil, state.OptionsFromConfig(sess.cfg, GetLogger()))
			defer ctrl.Close()

			if len(args) == 1 {
				return downloadOne(cmd, sess, ctrl, args[0], output)
			}

			dir := output
			if dir == "" {
				dir = "."
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}

			reqs := make([]transfer.Request, 0, len(args))
			for _, arg := range args {
				loc, f, err := lookupFile(sess, cmd.ErrOrStderr(), ctrl, arg)
				if err != nil {
					return err
				}
				if f.IsFolder() {
					printWarning(cmd.ErrOrStderr(), "skipping folder %s", f.Name)
					continue
				}
				reqs = append(reqs, downloadRequest(loc, f, dir))
			}
			return runDownloads(ctx, sess, cmd.OutOrStdout(), cmd.ErrOrStderr(), reqs, parallel)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (- for stdout)")
	cmd.Flags().IntVarP(&parallel, "parallel", "j", 0, "Files downloaded at once (default: client.parallel_downloads)")

	return cmd
}

// downloadOne fetches a single file with a plain progress bar.
func downloadOne(cmd *cobra.Command, sess *session, ctrl *state.ListingController, pathname, output string) error {
	loc, f, err := lookupFile(sess, cmd.ErrOrStderr(), ctrl, pathname)
	if err != nil {
		return err
	}
	if f.IsFolder() {
		return fmt.Errorf("%s is a folder", f.Name)
	}

	target := output
	if target == "" {
		target = transfer.LocalName(f.Name)
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, transfer.LocalName(f.Name))
	}
	if err := checkSpace(target, f); err != nil {
		return err
	}

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	reporter := progress.NewCLIProgressTo(cmd.ErrOrStderr())
	n, err := sess.client.Download(GetContext(), loc.Drive, loc.Path, f.Name, dst, reporter)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(target)
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Downloaded %s (%s) to %s\n", f.Name, sizeLabel(n), target)
	return nil
}

// downloadRequest builds a queue entry saving f from folder loc into dir.
func downloadRequest(loc pathcodec.Location, f models.DriveFile, dir string) transfer.Request {
	size, ok := f.SizeBytes()
	if !ok {
		size = -1
	}
	id := f.ID
	if !f.Resolved() {
		id = ""
	}
	return transfer.Request{
		FileID: id,
		Drive:  loc.Drive,
		Folder: loc.Path,
		Name:   f.Name,
		Target: filepath.Join(dir, transfer.LocalName(f.Name)),
		Size:   size,
	}
}

// runDownloads fetches reqs through the transfer manager, drawing bars on
// progressOut, and prints a summary to out.
func runDownloads(ctx context.Context, sess *session, out, progressOut io.Writer, reqs []transfer.Request, parallel int) error {
	if len(reqs) == 0 {
		fmt.Fprintln(out, "Nothing to download")
		return nil
	}

	if n := transfer.ResolveCollisions(reqs); n > 0 {
		printWarning(progressOut, "%d files share a name; saving them with their ids appended", n)
	}

	ui := progress.NewDownloadUI(progressOut, len(reqs))
	m := transfer.NewManager(sess.client, transfer.NewQueue(nil), parallel, GetLogger())
	tasks := m.Run(ctx, reqs, ui)
	ui.Wait()

	var failed int
	for _, task := range tasks {
		if task.State != transfer.TaskCompleted {
			failed++
		}
	}
	fmt.Fprintf(out, "%d of %d files downloaded\n", len(tasks)-failed, len(tasks))
	if failed > 0 {
		return fmt.Errorf("%d download(s) did not complete", failed)
	}
	return nil
}

// newURLCmd creates the 'url' command.
func newURLCmd() *cobra.Command {
	var previewLink bool
	var absolute bool

	cmd := &cobra.Command{
		Use:   "url <pathname>",
		Short: "Print the download or preview link of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			loc, name, err := resolveFile(args[0], cfg.DefaultDrive)
			if err != nil {
				return err
			}

			link := api.DownloadURL(loc.Drive, loc.Path, name)
			if previewLink {
				link = api.PreviewURL(loc.Drive, loc.Path, name)
			}
			if absolute {
				if cfg.BaseURL == "" {
					return fmt.Errorf("--absolute needs a base URL: %w", config.ErrMissingBaseURL)
				}
				link = cfg.BaseURL + link
			}

			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&previewLink, "preview", "p", false, "Link to the preview page instead of the raw file")
	cmd.Flags().BoolVarP(&absolute, "absolute", "A", false, "Prefix the worker base URL")

	return cmd
}

// newPreviewCmd creates the 'preview' command.
func newPreviewCmd() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "preview <pathname>",
		Short: "Show file details and, for text, its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}

			ctrl := state.NewListingController(sess.client, nil, state.OptionsFromConfig(sess.cfg, GetLogger()))
			defer ctrl.Close()

			loc, f, err := lookupFile(sess, cmd.ErrOrStderr(), ctrl, args[0])
			if err != nil {
				return err
			}
			return showPreview(cmd.OutOrStdout(), sess, loc, f, limit)
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum bytes of text to show (0 = default)")

	return cmd
}

// showPreview prints metadata and, for inline kinds, the file body. A failed
// content fetch only drops the body.
func showPreview(out io.Writer, sess *session, loc pathcodec.Location, f models.DriveFile, limit int64) error {
	link := sess.client.AbsoluteURL(api.DownloadURL(loc.Drive, loc.Path, f.Name))
	renderFileInfo(out, f, link)

	kind := preview.KindOf(f)
	if !kind.IsInline() {
		if !preview.IsPreviewable(f.MimeType, f.Extension()) {
			fmt.Fprintln(out, dimStyle.Render("  No preview available; use 'download'."))
		}
		return nil
	}

	text, ok := sess.client.FetchPreviewText(GetContext(), loc.Drive, loc.Path, f.Name, limit)
	if !ok {
		printWarning(out, "  Content unavailable")
		return nil
	}

	if kind == preview.KindCode {
		fmt.Fprintln(out, dimStyle.Render("--- "+preview.LanguageFor(f.Name)+" ---"))
	} else {
		fmt.Fprintln(out, dimStyle.Render("---"))
	}
	fmt.Fprintln(out, text)
	return nil
}
