package qiita

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/logging"
)

// Downloader fetches public Qiita archives
type Downloader struct {
	BaseURL     string
	Timeout     time.Duration
	MaxBodySize int // bytes, 0 means unlimited
	UserAgent   string
}

// NewDownloader returns a downloader for the public deployment
func NewDownloader() *Downloader {
	return &Downloader{
		BaseURL:   BaseURL,
		Timeout:   10 * time.Minute,
		UserAgent: "redbiomctl",
	}
}

// URL returns the link d would fetch for r
func (d *Downloader) URL(r Request) (string, error) {
	base := d.BaseURL
	if base == "" {
		base = BaseURL
	}
	return downloadURL(base, r)
}

// Download saves the archive for r into dir and returns the file path. The
// file name comes from Content-Disposition when the server sends one.
func (d *Downloader) Download(ctx context.Context, r Request, dir string) (string, error) {
	link, err := d.URL(r)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating download directory: %w", err)
	}

	c := colly.NewCollector(
		colly.UserAgent(d.UserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.MaxBodySize = d.MaxBodySize
	if d.Timeout > 0 {
		c.SetRequestTimeout(d.Timeout)
	}

	var (
		saved   string
		dlErr   error
		started = time.Now()
	)
	c.OnRequest(func(req *colly.Request) {
		config.DebugLog("[Qiita] GET %s", req.URL)
	})
	c.OnResponse(func(resp *colly.Response) {
		name := fileName(resp.Headers.Get("Content-Disposition"), r)
		saved = filepath.Join(dir, name)
		if err := resp.Save(saved); err != nil {
			dlErr = fmt.Errorf("error saving %s: %w", saved, err)
		}
	})
	c.OnError(func(resp *colly.Response, err error) {
		dlErr = fmt.Errorf("download of %s failed (status %d): %w", link, resp.StatusCode, err)
	})

	if err := c.Visit(link); err != nil && dlErr == nil {
		dlErr = fmt.Errorf("download of %s failed: %w", link, err)
	}
	c.Wait()

	if dlErr != nil {
		return "", dlErr
	}
	logging.Info("qiita download finished", "url", link, "path", saved, "duration", time.Since(started))
	return saved, nil
}

// fileName picks a safe local name for the archive
func fileName(disposition string, r Request) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := filepath.Base(params["filename"]); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}
	id := strconv.Itoa(r.StudyID)
	if r.Data == PrepInfo {
		id = "prep_" + strconv.Itoa(r.PrepID)
	}
	return fmt.Sprintf("qiita_%s_%s.zip", id, r.Data)
}
