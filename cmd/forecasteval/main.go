package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/forecasteval/internal/api"
	"github.com/lox/forecasteval/internal/corpus"
	"github.com/lox/forecasteval/internal/ingest"
	"github.com/lox/forecasteval/internal/models"
	"github.com/lox/forecasteval/internal/store"
	"github.com/lox/forecasteval/internal/summary"
)

type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,help='Path to .env file'"`

	DataDir  string `name:"data-dir" env:"FORECASTEVAL_DATA_DIR" default:"data" help:"Directory holding the downloaded corpus files."`
	DB       string `name:"db" env:"FORECASTEVAL_DB" default:"data/forecasteval.db" help:"Path to SQLite database."`
	Info     string `name:"info" env:"FORECASTEVAL_INFO" help:"Reference table (default: <data-dir>/M4Info.csv)."`
	Baseline string `name:"baseline" env:"FORECASTEVAL_BASELINE" help:"Baseline forecasts (default: <data-dir>/submission-Naive2.csv)."`
}

func (g *Globals) infoPath() string {
	if g.Info != "" {
		return g.Info
	}
	return filepath.Join(g.DataDir, "M4Info.csv")
}

func (g *Globals) baselinePath() string {
	if g.Baseline != "" {
		return g.Baseline
	}
	return filepath.Join(g.DataDir, "submission-Naive2.csv")
}

func (g *Globals) openStore() (*store.Store, error) {
	if dir := filepath.Dir(g.DB); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return store.Open(g.DB)
}

func (g *Globals) loadEvaluator(ctx context.Context, st *store.Store, alignByID bool) (*summary.Evaluator, error) {
	acc := corpus.NewAccessor(g.infoPath(), st)
	return summary.Load(ctx, acc, g.baselinePath(), alignByID)
}

type CLI struct {
	Globals

	Fetch    FetchCmd    `cmd:"" help:"Download the corpus files into the data directory."`
	Cache    CacheCmd    `cmd:"" help:"Manage the value cache."`
	Evaluate EvaluateCmd `cmd:"" help:"Score a forecast table against the test partition."`
	Serve    ServeCmd    `cmd:"" help:"Run the evaluation HTTP server."`
	History  HistoryCmd  `cmd:"" help:"List saved evaluations."`
	Runs     RunsCmd     `cmd:"" help:"List recent ingest runs."`
}

type FetchCmd struct {
	Sources []string `arg:"" optional:"" help:"Source URLs (http, https or ftp). Defaults to the M4 corpus files."`
}

func (c *FetchCmd) Run(ctx context.Context, g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sources := c.Sources
	if len(sources) == 0 {
		sources = ingest.DefaultSources
	}
	return ingest.NewFetcher(st).FetchAll(ctx, sources, g.DataDir)
}

type CacheCmd struct {
	Build    CacheBuildCmd    `cmd:"" help:"Load the train and test CSV files into the value cache."`
	Validate CacheValidateCmd `cmd:"" help:"Check cached series against the reference table."`
}

type CacheBuildCmd struct {
	Partition string `enum:"all,training,test" default:"all" help:"Partition to build (all, training, test)."`
}

func (c *CacheBuildCmd) Run(ctx context.Context, g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	info, err := corpus.ReadInfoFile(g.infoPath())
	if err != nil {
		return err
	}
	b := ingest.NewCacheBuilder(st)
	if c.Partition == "all" {
		return b.Build(ctx, g.DataDir, info)
	}
	p, err := models.ParsePartition(c.Partition)
	if err != nil {
		return err
	}
	_, err = b.BuildPartition(ctx, g.DataDir, p, info)
	return err
}

type CacheValidateCmd struct{}

func (c *CacheValidateCmd) Run(ctx context.Context, g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	info, err := corpus.ReadInfoFile(g.infoPath())
	if err != nil {
		return err
	}
	counts, err := ingest.NewCacheBuilder(st).Validate(ctx, info)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Printf("%d series, no issues\n", len(info))
		return nil
	}

	flags := make([]string, 0, len(counts))
	for f := range counts {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FLAG\tSERIES")
	for _, f := range flags {
		fmt.Fprintf(tw, "%s\t%d\n", f, counts[f])
	}
	return tw.Flush()
}

type EvaluateCmd struct {
	Forecasts string `arg:"" type:"existingfile" help:"Forecast CSV in the baseline layout (id column, then values)."`
	Label     string `help:"Label for the saved evaluation."`
	Save      bool   `help:"Save the result to the evaluation history."`
	AlignByID bool   `name:"align-by-id" help:"Match forecast and baseline rows on identifier instead of position."`
	JSON      bool   `name:"json" help:"Print the result as JSON."`
}

func (c *EvaluateCmd) Run(ctx context.Context, g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ev, err := g.loadEvaluator(ctx, st, c.AlignByID)
	if err != nil {
		return err
	}

	rows, err := corpus.ReadRowsFile(c.Forecasts)
	if err != nil {
		return fmt.Errorf("read forecasts: %w", err)
	}
	forecasts, err := corpus.Align(rows, ev.Series(), c.AlignByID)
	if err != nil {
		return fmt.Errorf("forecasts: %w", err)
	}

	res, err := ev.Evaluate(ctx, forecasts)
	if err != nil {
		return err
	}

	if c.Save || c.Label != "" {
		label := c.Label
		if label == "" {
			label = filepath.Base(c.Forecasts)
		}
		rec, err := res.Record(label)
		if err != nil {
			return err
		}
		id, err := st.InsertEvaluation(rec)
		if err != nil {
			return fmt.Errorf("save evaluation: %w", err)
		}
		log.Printf("saved evaluation %d (%s)", id, label)
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printSummaries(os.Stdout, res.SMAPE, res.OWA)
}

// printSummaries writes one row per bucket with the sMAPE and OWA columns.
func printSummaries(w io.Writer, smape, owa summary.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tsMAPE\tOWA\t")
	for _, b := range summary.Buckets() {
		s, _ := smape.Get(b)
		o, _ := owa.Get(b)
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t\n", b, s, o)
	}
	return tw.Flush()
}

type ServeCmd struct {
	Port      string `env:"PORT" default:"8080" help:"HTTP server port."`
	AlignByID bool   `name:"align-by-id" help:"Match baseline rows on identifier instead of position."`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ev, err := g.loadEvaluator(ctx, st, c.AlignByID)
	if errors.Is(err, models.ErrCorpusUnavailable) {
		log.Printf("server: evaluation disabled: %v", err)
		ev = nil
	} else if err != nil {
		return err
	}

	log.Printf("server: listening on :%s", c.Port)
	return api.NewServer(st, ev, c.Port).Run(ctx)
}

type HistoryCmd struct {
	Limit int `default:"20" help:"Number of evaluations to show."`
}

func (c *HistoryCmd) Run(g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	evals, err := st.GetEvaluations(c.Limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tWHEN\tSERIES\tsMAPE\tOWA")
	for _, e := range evals {
		var smape, owa summary.Summary
		if err := json.Unmarshal([]byte(e.SMAPEJSON), &smape); err != nil {
			log.Printf("history: decode evaluation %d: %v", e.ID, err)
			continue
		}
		if err := json.Unmarshal([]byte(e.OWAJSON), &owa); err != nil {
			log.Printf("history: decode evaluation %d: %v", e.ID, err)
			continue
		}
		s, _ := smape.Get(models.BucketAverage)
		o, _ := owa.Get(models.BucketAverage)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.3f\t%.3f\n",
			e.ID, e.Label, humanize.Time(e.EvaluatedAt), e.SeriesCount, s, o)
	}
	return tw.Flush()
}

type RunsCmd struct {
	Limit  int  `default:"20" help:"Number of runs to show."`
	Failed bool `help:"Only show failed runs."`
}

func (c *RunsCmd) Run(g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.GetRecentIngestRuns(c.Limit, c.Failed)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSOURCE\tTARGET\tRESULT")
	for _, r := range runs {
		result := "ok"
		switch {
		case !r.Success && r.ErrorMessage.Valid:
			result = r.ErrorMessage.String
		case !r.Success:
			result = "incomplete"
		case r.BytesFetched.Valid:
			result = humanize.Bytes(uint64(r.BytesFetched.Int64))
		case r.RecordsStored.Valid:
			result = fmt.Sprintf("%d series", r.RecordsStored.Int64)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Source, r.Target, result)
	}
	return tw.Flush()
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("forecasteval"),
		kong.Description("Score point forecasts against the M4 competition test set."),
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	kctx.BindTo(ctx, (*context.Context)(nil))

	if err := kctx.Run(&cli.Globals); err != nil {
		log.Fatalf("%s: %v", kctx.Command(), err)
	}
}
