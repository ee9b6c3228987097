package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/forecasteval/internal/httputil"
	"github.com/lox/forecasteval/internal/metrics"
	"github.com/lox/forecasteval/internal/store"
)

// Corpus sources of the M4 competition.
const (
	InfoURL          = "https://www.m4.unic.ac.cy/wp-content/uploads/2018/12/M4Info.csv"
	TrainingURL      = "https://www.m4.unic.ac.cy/wp-content/uploads/2017/12/M4DataSet.zip"
	TestURL          = "https://www.m4.unic.ac.cy/wp-content/uploads/2018/07/M-test-set.zip"
	NaiveForecastURL = "https://github.com/M4Competition/M4-methods/raw/master/Point%20Forecasts/submission-Naive2.rar"
)

var DefaultSources = []string{InfoURL, TrainingURL, TestURL, NaiveForecastURL}

// FetchResult describes one completed download.
type FetchResult struct {
	Path       string
	HTTPStatus int
	Bytes      int64
	Skipped    bool
}

// Fetcher downloads corpus files into a directory. http(s) sources are
// retried with exponential backoff; ftp sources are fetched once.
type Fetcher struct {
	store      *store.Store
	client     *http.Client
	maxElapsed time.Duration
	initial    time.Duration
}

// NewFetcher returns a fetcher that records every download in st's ingest
// runs. st may be nil.
func NewFetcher(st *store.Store) *Fetcher {
	return &Fetcher{
		store:      st,
		client:     httputil.NewDownloadClient(),
		maxElapsed: 5 * time.Minute,
		initial:    500 * time.Millisecond,
	}
}

// FetchAll downloads every source into dir, extracting zip archives.
func (f *Fetcher) FetchAll(ctx context.Context, sources []string, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, src := range sources {
		res, err := f.Fetch(ctx, src, dir)
		if err != nil {
			return err
		}
		if res.Skipped {
			continue
		}
		switch filepath.Ext(res.Path) {
		case ".zip":
			n, err := ExtractZip(res.Path, dir)
			if err != nil {
				return err
			}
			log.Printf("ingest: extracted %d files from %s", n, filepath.Base(res.Path))
		case ".rar":
			log.Printf("ingest: %s must be extracted manually", filepath.Base(res.Path))
		}
	}
	return nil
}

// Fetch downloads src into dir unless the file is already there.
func (f *Fetcher) Fetch(ctx context.Context, src, dir string) (*FetchResult, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src, err)
	}
	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil || name == "" || name == "/" || name == "." {
		return nil, fmt.Errorf("no file name in %s", src)
	}
	dest := filepath.Join(dir, name)

	if _, err := os.Stat(dest); err == nil {
		log.Printf("ingest: skip %s, already exists", dest)
		return &FetchResult{Path: dest, Skipped: true}, nil
	}

	var run *store.IngestRun
	if f.store != nil {
		run, _ = f.store.StartIngestRun(src, dest)
	}

	log.Printf("ingest: fetching %s", src)
	start := time.Now()
	var res *FetchResult
	switch u.Scheme {
	case "http", "https":
		res, err = f.fetchHTTP(ctx, src, dest)
	case "ftp":
		res, err = f.fetchFTP(ctx, u, dest)
	default:
		err = fmt.Errorf("unsupported scheme %q in %s", u.Scheme, src)
	}
	metrics.FetchLatency.WithLabelValues(u.Scheme).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.FetchesTotal.WithLabelValues(u.Scheme, status).Inc()

	if run != nil {
		run.Success = err == nil
		if res != nil {
			run.HTTPStatus = sql.NullInt64{Int64: int64(res.HTTPStatus), Valid: res.HTTPStatus > 0}
			run.BytesFetched = sql.NullInt64{Int64: res.Bytes, Valid: true}
		}
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := f.store.CompleteIngestRun(run); cerr != nil {
			log.Printf("ingest: failed to record run: %v", cerr)
		}
	}

	if err != nil {
		return nil, err
	}
	log.Printf("ingest: saved %s (%d bytes)", dest, res.Bytes)
	return res, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d", e.code)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src, dest string) (*FetchResult, error) {
	res := &FetchResult{Path: dest}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", "forecasteval/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", src, err)
		}
		defer resp.Body.Close()

		res.HTTPStatus = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch %s: %w", src, &statusError{resp.StatusCode})
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", src, &statusError{resp.StatusCode}))
		}

		n, err := writeFile(dest, resp.Body)
		if err != nil {
			return fmt.Errorf("download %s: %w", src, err)
		}
		res.Bytes = n
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.initial
	bo.MaxElapsedTime = f.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return res, err
	}
	return res, nil
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL, dest string) (*FetchResult, error) {
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	n, err := writeFile(dest, resp)
	if err != nil {
		return nil, fmt.Errorf("ftp download: %w", err)
	}
	return &FetchResult{Path: dest, Bytes: n}, nil
}

// writeFile streams r to a temporary file next to dest and renames it into
// place, so an interrupted download never leaves a partial dest behind.
func writeFile(dest string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}

// IsNotFound reports whether err is a permanent 404 from an http source.
func IsNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}
