package skills

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// receiptPage is the self-contained page the capability navigates to. The
// rendered receipt text is what ends up in the artifact.
const receiptPage = `<html><body><pre id="receipt">Receipt: OK</pre></body></html>`

// fetchReceiptFunc renders the receipt page and returns its text. Injectable
// so tests do not need a Chrome binary.
type fetchReceiptFunc func(ctx context.Context) (string, error)

// UploadReceiptCapability drives a headless browser through a synthetic
// upload flow and saves the resulting receipt into the run's working
// directory. Requires Chrome/Chromium on the host.
type UploadReceiptCapability struct {
	timeout time.Duration
	fetch   fetchReceiptFunc
}

// NewUploadReceipt returns the capability with the default browser-backed
// fetch.
func NewUploadReceipt() *UploadReceiptCapability {
	c := &UploadReceiptCapability{timeout: 30 * time.Second}
	c.fetch = c.fetchWithBrowser
	return c
}

func (c *UploadReceiptCapability) Name() string { return "upload_receipt" }

func (c *UploadReceiptCapability) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	workdir := argString(args, "workdir", ".")

	text, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to render receipt page: %w", err)
	}

	path := filepath.Join(workdir, "receipt.txt")
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write receipt: %w", err)
	}
	return map[string]any{
		"ok":        true,
		"path":      path,
		"artifacts": []string{path},
	}, nil
}

func (c *UploadReceiptCapability) fetchWithBrowser(ctx context.Context) (string, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, c.timeout)
	defer cancel()

	var text string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("data:text/html,"+url.PathEscape(receiptPage)),
		chromedp.WaitReady("body"),
		chromedp.Text("#receipt", &text),
	)
	if err != nil {
		return "", err
	}
	return text, nil
}
