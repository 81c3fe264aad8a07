package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/PavelSimon/EDC-data/config"
	"github.com/PavelSimon/EDC-data/models"
	"github.com/PavelSimon/EDC-data/parser"
)

const (
	phaseBaseline = "baseline"
	phaseSubmit   = "submit"

	ctxPhase  = "phase"
	ctxStart  = "start"
	ctxStatus = "status"
	ctxTokens = "tokens"
	ctxTable  = "table"
)

// Scraper fetches the publication page once per day of a date range and
// turns the first table of each response into records.
type Scraper struct {
	cfg       *config.Config
	host      string
	transport http.RoundTripper
	Metrics   *Metrics
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithTransport replaces the HTTP transport used by every session.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Scraper) {
		s.transport = rt
	}
}

// WithMetrics shares an existing metrics bundle.
func WithMetrics(m *Metrics) Option {
	return func(s *Scraper) {
		s.Metrics = m
	}
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, opts ...Option) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	s := &Scraper{
		cfg:     cfg,
		host:    parsed.Hostname(),
		Metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scrape performs one fetch-and-parse cycle per day from start to end
// inclusive, in order. A failed day contributes no records and never stops
// the range. An inverted range yields an empty result without any request.
//
// The returned error is non-nil only when ctx is cancelled; the partial
// result collected so far is returned with it.
func (s *Scraper) Scrape(ctx context.Context, start, end models.Date) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dates := models.DateRange{Start: start, End: end}
	result := models.NewScrapeResult(dates)
	result.StartTime = time.Now()
	defer func() {
		result.EndTime = time.Now()
	}()

	if dates.Len() == 0 {
		slog.Warn("empty date range, nothing to scrape",
			slog.String("start", start.String()),
			slog.String("end", end.String()),
		)
		return result, nil
	}

	sess := s.openSession()
	defer sess.Close()

	slog.Info("starting range scrape",
		slog.String("range", dates.String()),
		slog.Int("days", dates.Len()),
	)

	for day := range dates.Days() {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("scrape %s interrupted before %s: %w", dates, day, err)
		}
		outcome := s.scrapeDay(sess, day)
		s.Metrics.day(outcome)
		result.Fold(outcome)
	}
	s.Metrics.rangeDone(time.Now())

	if result.Empty() {
		slog.Warn("no data collected for range",
			slog.String("range", dates.String()),
			slog.Int("failed_days", result.DaysWithStatus(models.DayFailed)),
		)
		return result, nil
	}

	slog.Info("range scrape finished",
		slog.String("range", dates.String()),
		slog.Int("records", len(result.Records)),
		slog.Int("failed_days", result.DaysWithStatus(models.DayFailed)),
		slog.Int("row_errors", result.RowErrors),
	)
	return result, nil
}

// scrapeDay runs the baseline fetch, the form submission and the table parse
// for one day on the shared session.
func (s *Scraper) scrapeDay(sess *session, day models.Date) models.DayOutcome {
	out := models.DayOutcome{Date: day}

	tokens, err := sess.baseline()
	out.Requests++
	if err != nil {
		return s.failDay(out, phaseBaseline, err)
	}

	rows, err := sess.submit(day, tokens)
	out.Requests++
	if err != nil {
		return s.failDay(out, phaseSubmit, err)
	}

	records, rowErrs := parser.ParseTable(day, rows)
	for _, rowErr := range rowErrs {
		s.Metrics.IncError(KindOf(rowErr))
		slog.Warn("skipping malformed row",
			slog.String("date", day.String()),
			slog.Any("error", rowErr),
		)
	}
	out.RowErrors = len(rowErrs)

	if len(records) == 0 {
		out.Status = models.DayEmpty
		slog.Warn("no records for day", slog.String("date", day.String()))
		return out
	}

	out.Status = models.DayRecords
	out.Records = records
	slog.Info("day scraped",
		slog.String("date", day.String()),
		slog.Int("records", len(records)),
	)
	return out
}

func (s *Scraper) failDay(out models.DayOutcome, phase string, err error) models.DayOutcome {
	kind := KindOf(err)
	s.Metrics.IncError(kind)
	slog.Error("day failed",
		slog.String("date", out.Date.String()),
		slog.String("phase", phase),
		slog.String("kind", string(kind)),
		slog.Any("error", err),
	)
	out.Status = models.DayFailed
	out.Err = fmt.Errorf("%s %s: %w", phase, out.Date, err)
	out.ErrorType = string(kind)
	return out
}

// session is the cookie and header state shared by every request of one
// Scrape call.
type session struct {
	cfg       *config.Config
	collector *colly.Collector
	transport http.RoundTripper
	owned     bool
}

func (s *Scraper) openSession() *session {
	collector := colly.NewCollector(
		colly.AllowedDomains(s.host),
		colly.UserAgent(s.cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(s.cfg.Timeout)
	collector.IgnoreRobotsTxt = !s.cfg.RespectRobotsTxt
	// Status codes are checked per request so that every non-2xx response
	// is reported the same way.
	collector.ParseHTTPErrorResponse = true

	sess := &session{cfg: s.cfg, collector: collector, transport: s.transport}
	if sess.transport == nil {
		sess.transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   s.cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		sess.owned = true
	}
	collector.WithTransport(sess.transport)

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
	})

	observe := func(ctx *colly.Context) {
		if start, ok := ctx.GetAny(ctxStart).(time.Time); ok {
			s.Metrics.request(ctx.Get(ctxPhase), time.Since(start))
		}
	}
	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxStatus, r.StatusCode)
		observe(r.Ctx)
	})
	// Transport failures never reach OnResponse.
	collector.OnError(func(r *colly.Response, _ error) {
		observe(r.Ctx)
	})

	collector.OnHTML("form input[type=hidden]", func(e *colly.HTMLElement) {
		tokens, ok := e.Request.Ctx.GetAny(ctxTokens).(url.Values)
		if !ok {
			return
		}
		if name := e.Attr("name"); name != "" {
			tokens.Set(name, e.Attr("value"))
		}
	})

	collector.OnHTML("table", func(e *colly.HTMLElement) {
		if e.Request.Ctx.Get(ctxPhase) != phaseSubmit || e.Request.Ctx.GetAny(ctxTable) != nil {
			return
		}
		e.Request.Ctx.Put(ctxTable, parser.TableRows(e.DOM))
	})

	return sess
}

// baseline loads the page to refresh the session cookie and returns the
// hidden form fields it carries.
func (sess *session) baseline() (url.Values, error) {
	tokens := url.Values{}
	ctx := colly.NewContext()
	ctx.Put(ctxPhase, phaseBaseline)
	ctx.Put(ctxTokens, tokens)

	if err := sess.do(http.MethodGet, nil, ctx, nil); err != nil {
		return nil, err
	}
	return tokens, nil
}

// submit posts the date selection form for day and returns the rows of the
// first table in the response.
func (sess *session) submit(day models.Date, tokens url.Values) ([][]string, error) {
	form := url.Values{}
	for name, values := range tokens {
		form[name] = append([]string(nil), values...)
	}
	form.Set(sess.cfg.FormDateField, day.FormDay())
	form.Set(sess.cfg.FormActionField, sess.cfg.FormActionValue)

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/x-www-form-urlencoded")
	hdr.Set("Referer", sess.cfg.BaseURL)

	ctx := colly.NewContext()
	ctx.Put(ctxPhase, phaseSubmit)

	if err := sess.do(http.MethodPost, strings.NewReader(form.Encode()), ctx, hdr); err != nil {
		return nil, err
	}

	rows, ok := ctx.GetAny(ctxTable).([][]string)
	if !ok {
		return nil, ErrNoTable
	}
	return rows, nil
}

func (sess *session) do(method string, body *strings.Reader, ctx *colly.Context, hdr http.Header) error {
	var err error
	if body == nil {
		err = sess.collector.Request(method, sess.cfg.BaseURL, nil, ctx, hdr)
	} else {
		err = sess.collector.Request(method, sess.cfg.BaseURL, body, ctx, hdr)
	}
	status, _ := ctx.GetAny(ctxStatus).(int)
	return classifyError(err, status)
}

// Close releases idle connections of a transport the session created.
func (sess *session) Close() {
	if !sess.owned {
		return
	}
	if t, ok := sess.transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
