// Command mammoannotator is the batch front end of the study preparation
// pipeline: it checks annotation tool connectivity, renders subtracted
// projections from DICOM series, provisions annotation projects from a
// worklist, uploads prepared study folders in bulk and exports finished
// brush annotations back into original image coordinates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mammoai/mammoannotator/internal/config"
	"github.com/mammoai/mammoannotator/internal/core/domain"
	"github.com/mammoai/mammoannotator/internal/core/ports"
	"github.com/mammoai/mammoannotator/internal/core/usecase"
	"github.com/mammoai/mammoannotator/internal/infrastructure/dicomdir"
	"github.com/mammoai/mammoannotator/internal/infrastructure/labelstudio"
	"github.com/mammoai/mammoannotator/internal/infrastructure/report"
	"github.com/mammoai/mammoannotator/internal/infrastructure/repository/postgres"
	"github.com/mammoai/mammoannotator/internal/infrastructure/storage/studyfs"
	"github.com/mammoai/mammoannotator/internal/infrastructure/worklist"
	"github.com/mammoai/mammoannotator/internal/observability/logging"
	"github.com/mammoai/mammoannotator/internal/version"
)

const service = "cli"

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	slog.SetDefault(logging.NewTextLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "check":
		err = runCheck(ctx, cfg, args)
	case "mip":
		err = runMIP(ctx, cfg, args)
	case "project":
		err = runProject(ctx, cfg, args)
	case "tasks":
		err = runTasks(ctx, cfg, args)
	case "export":
		err = runExport(ctx, cfg, args)
	case "version":
		fmt.Printf("mammoannotator %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildTime)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: mammoannotator <command> [flags]

commands:
  check     verify annotation tool connectivity and token
  mip       render subtracted projections from a study's DICOM series
  project   create a project and upload every study named in a worklist
  tasks     upload prepared studies under a folder into an existing project
  export    export brush annotations back into original image coordinates
  version   print the build version

run "mammoannotator <command> -h" for the command's flags`)
}

func runCheck(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := labelstudio.New(cfg.LabelStudioURL, cfg.LabelStudioToken)
	if err := client.CheckConnection(ctx); err != nil {
		return err
	}
	fmt.Printf("annotation tool at %s is reachable\n", cfg.LabelStudioURL)
	return nil
}

func runMIP(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("mip", flag.ExitOnError)
	study := fs.String("study", "", "study directory, absolute or relative to the studies root")
	var series seriesList
	fs.Var(&series, "series", "series directory name, repeatable in pre,post order (default: auto-select the contrast pair)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *study == "" {
		return errors.New("missing -study")
	}

	store, err := studyfs.New(cfg.StudiesRoot, cfg.ImageServerURL)
	if err != nil {
		return err
	}
	ref, err := store.ResolveStudy(ctx, *study)
	if err != nil {
		return err
	}

	uc := usecase.NewRenderProjectionsUseCase(dicomdir.New(), store)
	written, err := uc.RenderProjections(ctx, ref.StudyDir, series)
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Println(path)
	}
	return nil
}

func runProject(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("project", flag.ExitOnError)
	worklistPath := fs.String("worklist", "", "worklist csv or xlsx; the patient folders live next to it")
	templatePath := fs.String("template", cfg.ProjectTemplatePath, "project template yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *worklistPath == "" {
		return errors.New("missing -worklist")
	}

	spec, err := config.LoadProjectTemplate(*templatePath)
	if err != nil {
		return err
	}

	entries, err := worklist.NewReader(*worklistPath).Entries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("worklist %s has no rows", *worklistPath)
	}

	// Every worklist row must resolve to an existing study directory
	// before the project is created, so a typo in the file cannot leave
	// a half-filled project behind.
	root := filepath.Dir(*worklistPath)
	store, err := studyfs.New(root, cfg.ImageServerURL)
	if err != nil {
		return err
	}
	studyDirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		ref, err := store.ResolveStudy(ctx, filepath.Join(entry.PatientID, entry.StudyID))
		if err != nil {
			return fmt.Errorf("worklist row %s/%s: %w", entry.PatientID, entry.StudyID, err)
		}
		studyDirs = append(studyDirs, ref.StudyDir)
	}
	fmt.Printf("worklist %s: %d studies\n", filepath.Base(*worklistPath), len(studyDirs))

	client := labelstudio.New(cfg.LabelStudioURL, cfg.LabelStudioToken)
	project, err := usecase.NewProvisionProjectUseCase(client, spec).ProvisionProject(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("created project %d %q\n", project.ID, project.Title)

	manifestPath := filepath.Join(root, manifestFileName(project.ID))
	runner := batchRunner(cfg, store, &staticWorklist{entries: entries}, manifestPath)
	summary, err := runner.RunStudies(ctx, studyDirs, project.ID)
	if err != nil {
		return err
	}
	printSummary(summary, manifestPath)
	return nil
}

func runTasks(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	projectID := fs.Int64("project", 0, "annotation project id")
	folder := fs.String("folder", "", "folder to scan, absolute or relative to the studies root")
	level := fs.String("level", "root", "folder depth: study, patient or root")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectID == 0 {
		return errors.New("missing -project")
	}
	if *folder == "" {
		return errors.New("missing -folder")
	}

	store, err := studyfs.New(cfg.StudiesRoot, cfg.ImageServerURL)
	if err != nil {
		return err
	}

	manifestPath := filepath.Join(absUnderRoot(store, *folder), manifestFileName(*projectID))
	runner := batchRunner(cfg, store, nil, manifestPath)
	summary, err := runner.RunBatch(ctx, *folder, *level, *projectID)
	if err != nil {
		return err
	}
	printSummary(summary, manifestPath)
	return nil
}

func runExport(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	projectID := fs.Int64("project", 0, "annotation project id")
	taskID := fs.Int64("task", 0, "restrict the export to one annotation task")
	outDir := fs.String("out", "", "directory the summary files are written to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectID == 0 {
		return errors.New("missing -project")
	}
	if *outDir == "" {
		return errors.New("missing -out")
	}

	store, err := studyfs.New(cfg.StudiesRoot, cfg.ImageServerURL)
	if err != nil {
		return err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	client := labelstudio.New(cfg.LabelStudioURL, cfg.LabelStudioToken)
	uc := usecase.NewExportAnnotationsUseCase(client, store, postgres.NewExportRepository(db), slog.Default())
	exports, err := uc.ExportAnnotations(ctx, *projectID, *taskID)
	if err != nil {
		return err
	}
	if len(exports) == 0 {
		fmt.Println("no annotations to export")
		return nil
	}

	csvPath, xlsxPath, err := worklist.NewExportWriter(*outDir).WriteSummary(*projectID, exports)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d masks\n", len(exports))
	fmt.Printf("summary: %s, %s\n", csvPath, xlsxPath)
	return nil
}

// batchRunner wires the upload pool. Each worker gets its own annotation
// client and its own manifest recorder, so no connection or file handle
// is shared across goroutines; the recorders converge on one manifest.
func batchRunner(cfg config.Config, store *studyfs.Store, rows ports.Worklist, manifestPath string) *usecase.BatchRunUseCase {
	deps := func() (usecase.BatchDeps, error) {
		client := labelstudio.New(cfg.LabelStudioURL, cfg.LabelStudioToken)
		recorder := worklist.NewManifestRecorder(manifestPath)
		return usecase.BatchDeps{
			Preparer:  usecase.NewPrepareStudyUseCase(store, rows, report.New()),
			Publisher: usecase.NewPublishTaskUseCase(client, recorder, nil),
			Close:     recorder.Close,
		}, nil
	}
	return usecase.NewBatchRunUseCase(store, deps, cfg.BatchWorkers, slog.Default())
}

func printSummary(summary *domain.BatchReport, manifestPath string) {
	fmt.Printf("uploaded %d/%d studies\n", summary.Succeeded, summary.Total)
	for _, dir := range summary.FailedStudies {
		fmt.Printf("  failed: %s\n", dir)
	}
	fmt.Printf("manifest: %s\n", manifestPath)
}

func manifestFileName(projectID int64) string {
	return fmt.Sprintf("project%d_tasks.csv", projectID)
}

func absUnderRoot(store *studyfs.Store, dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(store.Root(), dir)
}

// seriesList collects repeated -series flags in the order given.
type seriesList []string

func (s *seriesList) String() string { return strings.Join(*s, ",") }

func (s *seriesList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// staticWorklist serves rows read once up front, so batch workers do not
// re-read the worklist file for every study they prepare.
type staticWorklist struct {
	entries []domain.WorklistEntry
}

func (w *staticWorklist) Entries(context.Context) ([]domain.WorklistEntry, error) {
	return w.entries, nil
}
