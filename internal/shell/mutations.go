package shell

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/services"
	"github.com/basflight/bas-console/internal/uploads"
	"github.com/basflight/bas-console/internal/utils"
	"github.com/basflight/bas-console/internal/views"
)

type uploadCmd struct {
	cli       *CLI
	kind      string
	skipProbe bool
}

func newUploadCmd(cli *CLI) *cobra.Command {
	uc := &uploadCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a flight-plan workbook or an SHR telemetry dump",
		Args:  cobra.ExactArgs(1),
		RunE:  uc.run,
	}
	cmd.Flags().StringVar(&uc.kind, "kind", string(models.SourceExcel), "Source kind: excel or shr")
	cmd.Flags().BoolVar(&uc.skipProbe, "skip-probe", false, "Send .xlsx files without opening them locally first")
	return cmd
}

func (uc *uploadCmd) run(cmd *cobra.Command, args []string) error {
	app := uc.cli.app
	kind, err := models.ParseSourceKind(uc.kind)
	if err != nil {
		return utils.NewValidationError("upload", err.Error())
	}

	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	name := filepath.Base(path)
	if err := uploads.Preflight(name, kind, info.Size(), app.Config.Uploads.MaxBytes); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if kind == models.SourceExcel && !uc.skipProbe && strings.EqualFold(filepath.Ext(name), ".xlsx") {
		summary, err := uploads.ProbeWorkbook(file)
		if err != nil {
			return err
		}
		app.Logger.Debug("workbook probed", slog.String("file", name), slog.Int("sheets", len(summary.Sheets)), slog.Int("rows", summary.DataRows))
		if err := uc.cli.renderer.Render("workbook", summary); err != nil {
			return err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind %s: %w", path, err)
		}
	}

	_, uploadErr := app.Coordinator.Upload(cmd.Context(), services.UploadFile{Name: name, Reader: file}, kind)
	if err := uc.cli.renderer.Render("uploads", views.UploadRows(app.Coordinator.History(), app.formatter())); err != nil {
		return err
	}
	return uploadErr
}

type reportCmd struct {
	cli      *CLI
	template string
	format   string
	regions  []string
	chart    string
	raw      bool
}

func newReportCmd(cli *CLI) *cobra.Command {
	names := make([]string, 0, len(services.Templates))
	for _, t := range services.Templates {
		names = append(names, string(t))
	}
	rc := &reportCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report for the active range or from a predefined template",
		Args:  cobra.NoArgs,
		RunE:  rc.run,
	}
	cmd.Flags().StringVar(&rc.template, "template", "", "Predefined report: "+strings.Join(names, ", "))
	cmd.Flags().StringVar(&rc.format, "format", string(models.ReportJSON), "Report format: json, png or xlsx")
	cmd.Flags().StringSliceVar(&rc.regions, "regions", nil, "Restrict to these regions (all when empty)")
	cmd.Flags().StringVar(&rc.chart, "chart", "", "Chart kind for image reports: bar, pie or line")
	cmd.Flags().BoolVar(&rc.raw, "raw", false, "Print the backend response verbatim")
	return cmd
}

func (rc *reportCmd) run(cmd *cobra.Command, _ []string) error {
	app := rc.cli.app
	req, err := rc.request(app)
	if err != nil {
		return err
	}
	handle, err := app.Coordinator.GenerateReport(cmd.Context(), req)
	if err != nil {
		return err
	}
	if rc.raw {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), string(handle.Raw))
		return err
	}
	return rc.cli.renderer.Render("report", handle)
}

func (rc *reportCmd) request(app *App) (models.ReportRequest, error) {
	active := app.Store.DateRange()
	if rc.template != "" {
		return services.BuildTemplate(services.ReportTemplate(rc.template), app.now(), active)
	}
	format, err := models.ParseReportFormat(rc.format)
	if err != nil {
		return models.ReportRequest{}, utils.NewValidationError("report", err.Error())
	}
	req := services.CustomReport(format, active, rc.regions)
	if rc.chart != "" {
		kind, err := models.ParseChartKind(rc.chart)
		if err != nil {
			return models.ReportRequest{}, utils.NewValidationError("report", err.Error())
		}
		req.ChartKind = kind
	}
	return req, nil
}

type downloadCmd struct {
	cli *CLI
	out string
}

func newDownloadCmd(cli *CLI) *cobra.Command {
	dc := &downloadCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "download REPORT_ID",
		Short: "Download a generated report",
		Args:  cobra.ExactArgs(1),
		RunE:  dc.run,
	}
	cmd.Flags().StringVarP(&dc.out, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}

func (dc *downloadCmd) run(cmd *cobra.Command, args []string) error {
	app := dc.cli.app
	if dc.out == "" {
		return app.Remote.DownloadReport(cmd.Context(), args[0], cmd.OutOrStdout())
	}

	f, err := os.Create(dc.out)
	if err != nil {
		return fmt.Errorf("create %s: %w", dc.out, err)
	}
	if err := app.Remote.DownloadReport(cmd.Context(), args[0], f); err != nil {
		f.Close()
		_ = os.Remove(dc.out)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dc.out, err)
	}
	app.Logger.Info("report saved", slog.String("id", args[0]), slog.String("path", dc.out))
	return nil
}

func newHealthCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := cli.app.Remote.Health(cmd.Context())
			if err != nil {
				return err
			}
			return cli.renderer.Render("health", status)
		},
	}
}
