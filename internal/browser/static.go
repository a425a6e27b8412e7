package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// StaticSession fetches pages over plain HTTP and queries the server-rendered
// markup with goquery. It suits shops whose stock marker is present without
// running JavaScript. There is nothing to wait for once the document is
// parsed, so a missing marker fails WaitForClass immediately.
type StaticSession struct {
	client *http.Client
	opts   *Options
	doc    *goquery.Document
	logger *slog.Logger
}

func NewStaticSession(opts *Options) *StaticSession {
	if opts == nil {
		opts = DefaultOptions()
	}

	jar, _ := cookiejar.New(nil)

	return &StaticSession{
		client: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
		},
		opts:   opts,
		logger: slog.Default().With("component", "static_session"),
	}
}

func (s *StaticSession) Navigate(ctx context.Context, url string) error {
	s.doc = nil

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", s.opts.UserAgent)
	if s.opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", s.opts.AcceptLanguage)
	}
	for k, v := range s.opts.ExtraHeaders {
		req.Header.Set(k, v)
	}

	s.logger.Debug("fetching", "url", url)

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("failed to fetch %s: %w: %w", url, ErrTimeout, err)
		}
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("failed to read %s: %w: %w", url, ErrTimeout, err)
		}
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	s.doc = doc
	return nil
}

func (s *StaticSession) WaitForClass(ctx context.Context, className string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.doc == nil {
		return errors.New("no page loaded")
	}

	if s.doc.Find(ClassSelector(className)).Length() == 0 {
		return fmt.Errorf("class %q not present: %w", className, ErrTimeout)
	}
	return nil
}

func (s *StaticSession) FindByClass(ctx context.Context, className string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.doc == nil {
		return nil, errors.New("no page loaded")
	}

	var elements []Element
	s.doc.Find(ClassSelector(className)).Each(func(_ int, sel *goquery.Selection) {
		elements = append(elements, selectionElement{sel: sel})
	})
	return elements, nil
}

func (s *StaticSession) Close() error {
	s.doc = nil
	s.client.CloseIdleConnections()
	return nil
}

type selectionElement struct {
	sel *goquery.Selection
}

func (e selectionElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(e.sel.Text()), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
