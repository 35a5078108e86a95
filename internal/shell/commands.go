package shell

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/repo"
	"github.com/basflight/bas-console/internal/services"
	"github.com/basflight/bas-console/internal/utils"
	"github.com/basflight/bas-console/internal/views"
)

func newRangeCmd(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Show or change the active date range",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the active date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.renderer.Render("range", newRangeView(cli.app.Store.DateRange()))
		},
	})
	cmd.AddCommand(newRangeSetCmd(cli))
	return cmd
}

type rangeSetCmd struct {
	cli   *CLI
	start string
	end   string
	today bool
}

func newRangeSetCmd(cli *CLI) *cobra.Command {
	rc := &rangeSetCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the active date range (bounds given out of order are swapped)",
		Args:  cobra.NoArgs,
		RunE:  rc.run,
	}
	cmd.Flags().StringVar(&rc.start, "start", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&rc.end, "end", "", "Last day, YYYY-MM-DD")
	cmd.Flags().BoolVar(&rc.today, "today", false, "Cover only the current day")
	return cmd
}

func (rc *rangeSetCmd) run(cmd *cobra.Command, _ []string) error {
	app := rc.cli.app
	var next models.DateRange
	if rc.today {
		next = models.Today(app.now())
	} else {
		if rc.start == "" || rc.end == "" {
			return utils.NewValidationError("set range", "both --start and --end are required")
		}
		parsed, err := models.ParseDateRange(rc.start, rc.end)
		if err != nil {
			return utils.NewValidationError("set range", err.Error())
		}
		next = parsed
	}
	applied, err := app.Store.SetDateRange(cmd.Context(), next)
	if err != nil {
		return err
	}
	return rc.cli.renderer.Render("range", newRangeView(applied))
}

type settingsCmd struct {
	cli           *CLI
	language      string
	theme         string
	notifications string
}

func newSettingsCmd(cli *CLI) *cobra.Command {
	sc := &settingsCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or update operator preferences",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}
	cmd.Flags().StringVar(&sc.language, "language", "", "Display language (ru, en)")
	cmd.Flags().StringVar(&sc.theme, "theme", "", "Theme (light, dark)")
	cmd.Flags().StringVar(&sc.notifications, "notifications", "", "Show mutation notices (on, off)")
	return cmd
}

func (sc *settingsCmd) run(cmd *cobra.Command, _ []string) error {
	app := sc.cli.app
	patch := models.Settings{Language: sc.language, Theme: sc.theme}
	switch strings.ToLower(sc.notifications) {
	case "":
	case "on", "true", "yes":
		on := true
		patch.Notifications = &on
	case "off", "false", "no":
		off := false
		patch.Notifications = &off
	default:
		return utils.NewValidationError("settings", fmt.Sprintf("notifications must be on or off, got %q", sc.notifications))
	}

	current := app.Store.Settings()
	if patch != (models.Settings{}) {
		current = app.Store.UpdateSettings(cmd.Context(), patch)
	}
	return sc.cli.renderer.Render("settings", newSettingsView(current))
}

func newStatsCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show flight statistics for the active range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := cli.app
			stats, err := app.Queries.Statistics(cmd.Context())
			view := statsView{
				Range: rangeTitle(app.Store.DateRange()),
				Cards: views.StatCards(views.From(stats, err), app.formatter()),
			}
			if rerr := cli.renderer.Render("stats", view); rerr != nil {
				return rerr
			}
			return err
		},
	}
}

type flightsCmd struct {
	cli   *CLI
	query repo.FlightQuery
	chart string
	list  bool
}

func newFlightsCmd(cli *CLI) *cobra.Command {
	fc := &flightsCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "flights",
		Short: "List flights in the active range",
		Args:  cobra.NoArgs,
		RunE:  fc.run,
	}
	cmd.Flags().StringVar(&fc.query.Region, "region", "", "Only flights departing from this region")
	cmd.Flags().IntVar(&fc.query.Skip, "skip", 0, "Rows to skip")
	cmd.Flags().IntVar(&fc.query.Limit, "limit", 0, "Maximum rows (backend default when 0)")
	cmd.Flags().StringVar(&fc.chart, "chart", "", "Also draw a chart: daily or hourly")
	cmd.Flags().BoolVar(&fc.list, "list", true, "Print the flight rows")
	return cmd
}

func (fc *flightsCmd) run(cmd *cobra.Command, _ []string) error {
	app := fc.cli.app
	switch fc.chart {
	case "", "daily", "hourly":
	default:
		return utils.NewValidationError("flights", fmt.Sprintf("chart must be daily or hourly, got %q", fc.chart))
	}

	flights, err := app.Queries.Flights(cmd.Context(), fc.query)
	if err != nil {
		return err
	}
	if fc.list {
		if err := fc.cli.renderer.Render("flights", flights); err != nil {
			return err
		}
	}

	result := views.Loaded(flights)
	switch fc.chart {
	case "daily":
		return fc.cli.renderer.Render("series", seriesView{
			Title:  "flights per day",
			Series: views.FlightSeries(result, app.Store.DateRange()),
		})
	case "hourly":
		return fc.cli.renderer.Render("series", seriesView{
			Title:  "flights per hour",
			Series: views.HourlySeries(result),
		})
	}
	return nil
}

type regionsCmd struct {
	cli   *CLI
	limit int
}

func newRegionsCmd(cli *CLI) *cobra.Command {
	rc := &regionsCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Show the region leaderboard for the active range",
		Args:  cobra.NoArgs,
		RunE:  rc.run,
	}
	cmd.Flags().IntVar(&rc.limit, "limit", services.DefaultRatingLimit, "Number of regions")
	return cmd
}

func (rc *regionsCmd) run(cmd *cobra.Command, _ []string) error {
	app := rc.cli.app
	rating, err := app.Queries.RegionRating(cmd.Context(), rc.limit)
	view := ratingView{
		Range: rangeTitle(app.Store.DateRange()),
		Table: views.RatingRows(views.From(rating, err), app.formatter()),
	}
	if rerr := rc.cli.renderer.Render("rating", view); rerr != nil {
		return rerr
	}
	return err
}

func newRegionCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "region [NAME]",
		Short: "Show the breakdown of one region",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := cli.app
			f := app.formatter()
			region := ""
			if len(args) == 1 {
				region = strings.TrimSpace(args[0])
			}
			if region == "" {
				return cli.renderer.Render("panel", views.RegionPanel("", views.Result[models.RegionDetail]{}, f))
			}
			detail, err := app.Queries.RegionDetail(cmd.Context(), region)
			if rerr := cli.renderer.Render("panel", views.RegionPanel(region, views.From(detail, err), f)); rerr != nil {
				return rerr
			}
			return err
		},
	}
}

type dashboardCmd struct {
	cli   *CLI
	query repo.FlightQuery
	limit int
}

func newDashboardCmd(cli *CLI) *cobra.Command {
	dc := &dashboardCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Load statistics, the daily chart and the leaderboard together",
		Args:  cobra.NoArgs,
		RunE:  dc.run,
	}
	cmd.Flags().StringVar(&dc.query.Region, "region", "", "Only flights departing from this region")
	cmd.Flags().IntVar(&dc.limit, "limit", services.DefaultRatingLimit, "Number of regions")
	return cmd
}

func (dc *dashboardCmd) run(cmd *cobra.Command, _ []string) error {
	app := dc.cli.app
	f := app.formatter()
	d := app.Queries.LoadDashboard(cmd.Context(), dc.query, dc.limit)
	title := rangeTitle(d.Range)

	steps := []struct {
		name string
		data any
	}{
		{"stats", statsView{Range: title, Cards: views.StatCards(d.Statistics, f)}},
		{"series", seriesView{Title: "flights per day", Series: views.FlightSeries(d.Flights, d.Range)}},
		{"rating", ratingView{Range: title, Table: views.RatingRows(d.Rating, f)}},
	}
	for _, step := range steps {
		if err := dc.cli.renderer.Render(step.name, step.data); err != nil {
			return err
		}
	}
	for _, err := range []error{d.Statistics.Err, d.Flights.Err, d.Rating.Err} {
		if utils.IsAuth(err) {
			return err
		}
	}
	return nil
}
