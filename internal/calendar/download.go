package calendar

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Download fetches the timetable from url and atomically replaces the
// single .ics file in dir. The campus timetable server is known to serve
// a broken certificate chain, hence the optional verification skip.
func Download(ctx context.Context, url, dir string, insecureSkipVerify bool) error {
	if url == "" {
		return fmt.Errorf("no calendar source url configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create calendar dir: %w", err)
	}

	client := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureSkipVerify},
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch calendar: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch calendar: unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(dir, ".timetable-*.ics.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write calendar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	dest := filepath.Join(dir, "timetable.ics")
	// Drop any previously discovered file so the directory keeps exactly
	// one .ics after the swap.
	old, _ := filepath.Glob(filepath.Join(dir, "*.ics"))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("replace calendar: %w", err)
	}
	for _, p := range old {
		if p != dest {
			os.Remove(p)
		}
	}
	return nil
}
