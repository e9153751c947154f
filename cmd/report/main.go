// Command report renders an offline HTML summary of recorded launches.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/acepocalypse/tt2check/internal/db"
	"github.com/acepocalypse/tt2check/internal/security"
	"github.com/acepocalypse/tt2check/internal/timeutil"
	"github.com/acepocalypse/tt2check/internal/version"
)

var (
	dbPath  = flag.String("db", "events.db", "Path to the sqlite event database")
	outPath = flag.String("out", "report.html", "Output HTML file")
	days    = flag.Int("days", 30, "Trailing window of days to chart")
	tz      = flag.String("tz", timeutil.DefaultTimezone, "Timezone for day bucketing")
	showVer = flag.Bool("version", false, "Print version and exit")
)

var outcomeColors = map[string]string{
	"success":    "#35b779",
	"rollback":   "#ff5252",
	"incomplete": "#fde725",
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.Version)
		return
	}

	loc, err := timeutil.LoadLocation(*tz)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := security.ValidateExportPath(*outPath); err != nil {
		log.Fatalf("invalid output path: %v", err)
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	byDay, order, err := database.LaunchesByDay(*days, loc)
	if err != nil {
		log.Fatalf("failed to query launches: %v", err)
	}
	if len(order) == 0 {
		log.Fatalf("no launches recorded in the last %d days", *days)
	}

	stats, err := database.LaunchStats()
	if err != nil {
		log.Fatalf("failed to query stats: %v", err)
	}
	total := 0
	for _, n := range stats {
		total += n
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Launch Report", Width: "1100px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Launches per day",
			Subtitle: fmt.Sprintf("last %d days, %d launches total (success=%d rollback=%d incomplete=%d)", *days, total, stats["success"], stats["rollback"], stats["incomplete"]),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	bar.SetXAxis(order)
	for _, outcome := range []string{"success", "rollback", "incomplete"} {
		series := make([]opts.BarData, 0, len(order))
		for _, day := range order {
			series = append(series, opts.BarData{Value: byDay[day][outcome]})
		}
		bar.AddSeries(outcome, series,
			charts.WithBarChartOpts(opts.BarChart{Stack: "outcomes"}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: outcomeColors[outcome]}),
		)
	}

	page := components.NewPage()
	page.AddCharts(bar)

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s", *outPath)
}
