package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/peterzhang0216/mediagrab/internal/detector"
	"github.com/peterzhang0216/mediagrab/internal/downloader"
	"github.com/peterzhang0216/mediagrab/internal/helpers"
	"github.com/peterzhang0216/mediagrab/internal/history"
	"github.com/peterzhang0216/mediagrab/internal/models"
	"github.com/peterzhang0216/mediagrab/internal/paths"
	"github.com/peterzhang0216/mediagrab/internal/queue"
	"github.com/peterzhang0216/mediagrab/internal/webclient"
)

var (
	downloadPageFlag      string
	downloadSaveAsFlag    string
	downloadSiteNameFlag  string
	downloadTypeFlag      string
	downloadMinScoreFlag  int
	downloadLimitFlag     int
	downloadResumeFlag    int
	downloadByWebsiteFlag bool
	downloadByTypeFlag    bool
)

var downloadCmd = &cobra.Command{
	Use:   "download [media-url]...",
	Short: "Download media resources through the bounded queue",
	Long: `Download enqueues one or more media URLs and drains the queue with
the configured concurrency bound and dispatch throttle. With --page it first
sniffs the page and downloads the detected resources that pass the filters.
With --resume it re-enqueues an earlier download from the history ledger.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadPageFlag, "page", "p", "", "Sniff this page and download the detected resources")
	downloadCmd.Flags().StringVarP(&downloadSaveAsFlag, "save-as", "o", "", "Save a single download under this filename")
	downloadCmd.Flags().StringVar(&downloadSiteNameFlag, "site-name", "", "Site folder name used when categorizing by website")
	downloadCmd.Flags().StringVarP(&downloadTypeFlag, "type", "t", "", "Only download resources of this type (with --page)")
	downloadCmd.Flags().IntVar(&downloadMinScoreFlag, "min-score", 0, "Only download resources scoring at least this value (with --page)")
	downloadCmd.Flags().IntVarP(&downloadLimitFlag, "limit", "l", 0, "Maximum resources to download (with --page, 0 downloads all)")
	downloadCmd.Flags().IntVar(&downloadResumeFlag, "resume", 0, "Re-enqueue history entry N (1 is the most recent)")
	downloadCmd.Flags().BoolVar(&downloadByWebsiteFlag, "by-website", false, "Group downloads into a folder per site (overrides config)")
	downloadCmd.Flags().BoolVar(&downloadByTypeFlag, "by-type", false, "Group downloads into folders by media type (overrides config)")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	resources, err := collectDownloadTargets(args)
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		return fmt.Errorf("nothing to download; pass media URLs, --page, or --resume")
	}
	if downloadSaveAsFlag != "" && len(resources) > 1 {
		return fmt.Errorf("--save-as only applies to a single download")
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase()

	ledger := history.New(db)

	client := webclient.New(globalConfig.ClientTimeoutSec, httpTransport(nil))
	dl := downloader.New(client, globalConfig.DefaultPath)

	display := newProgressDisplay()
	scheduler := queue.New(dl, ledger, queue.Config{
		MaxConcurrent:  globalConfig.MaxConcurrentDownloads,
		SpeedLimitKBps: globalConfig.DownloadSpeedLimitKBps,
		PathOptions: paths.Options{
			ByWebsite: globalConfig.CategorizeByWebsite,
			ByType:    globalConfig.CategorizeByType,
		},
		OnEvent: display.observe,
	})
	dl.SetEvents(scheduler)

	opts := models.EnqueueOptions{
		SaveAs:              downloadSaveAsFlag,
		SiteName:            downloadSiteNameFlag,
		CategorizeByWebsite: downloadByWebsiteFlag,
		CategorizeByType:    downloadByTypeFlag,
	}
	for _, r := range resources {
		scheduler.Enqueue(r, opts)
	}

	display.start(scheduler)
	defer display.stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Wait(ctx); err != nil {
		log.Warn("Interrupted; cancelling remaining downloads")
		for _, item := range scheduler.Items() {
			scheduler.Cancel(item.ID)
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = scheduler.Wait(drainCtx)
	}

	return summarize(cmd, ledger, len(resources))
}

// collectDownloadTargets gathers resources from direct URLs, a sniffed
// page, or a history entry, depending on the flags.
func collectDownloadTargets(args []string) ([]*models.Resource, error) {
	var resources []*models.Resource

	if downloadResumeFlag > 0 {
		r, err := resourceFromHistory(downloadResumeFlag)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}

	if downloadPageFlag != "" {
		detected, err := sniffPage(downloadPageFlag)
		if err != nil {
			return nil, err
		}
		detected = filterResources(detected, downloadTypeFlag, downloadMinScoreFlag, downloadLimitFlag)
		resources = append(resources, detected...)
	}

	for _, raw := range args {
		resources = append(resources, resourceFromURL(raw))
	}
	return resources, nil
}

// resourceFromURL builds a minimal resource for a directly supplied URL.
func resourceFromURL(raw string) *models.Resource {
	typ, _ := detector.TypeFromURL(raw)
	sources := []string{models.SourceOriginal}
	if detector.IsStreamManifest(raw) {
		sources = append(sources, models.SourceStreaming)
	}
	return &models.Resource{
		URL:       raw,
		Type:      typ,
		Quality:   models.QualityUnknown,
		Sources:   sources,
		Timestamp: time.Now(),
	}
}

// resourceFromHistory rebuilds a resource from ledger entry n, counting
// from the most recent. The retry is a fresh enqueue; no transfer state
// survives from the original attempt.
func resourceFromHistory(n int) (*models.Resource, error) {
	db, err := openDatabase()
	if err != nil {
		return nil, err
	}
	entries := history.New(db).Entries()
	if n > len(entries) {
		return nil, fmt.Errorf("history has only %d entries", len(entries))
	}
	entry := entries[n-1]
	r := resourceFromURL(entry.URL)
	r.Type = entry.Type
	r.Size = entry.Size
	return r, nil
}

func summarize(cmd *cobra.Command, ledger *history.Ledger, requested int) error {
	var complete, failed int
	entries := ledger.Entries()
	if requested < len(entries) {
		entries = entries[:requested]
	}
	for _, e := range entries {
		if e.Outcome == models.StatusComplete {
			complete++
		} else {
			failed++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Done: %d complete, %d failed or cancelled.\n", complete, failed)
	if failed > 0 {
		return fmt.Errorf("%d download(s) did not complete", failed)
	}
	return nil
}

// progressDisplay renders in-flight queue items on a single refreshing
// terminal region.
type progressDisplay struct {
	writer    *uilive.Writer
	mu        sync.Mutex
	scheduler *queue.Scheduler
	done      chan struct{}
	finished  int
}

func newProgressDisplay() *progressDisplay {
	return &progressDisplay{writer: uilive.New(), done: make(chan struct{})}
}

func (p *progressDisplay) observe(ev queue.Event) {
	if ev.Type == queue.EventComplete || ev.Type == queue.EventFailed {
		p.mu.Lock()
		p.finished++
		p.mu.Unlock()
	}
}

func (p *progressDisplay) start(s *queue.Scheduler) {
	p.mu.Lock()
	p.scheduler = s
	p.mu.Unlock()

	p.writer.Start()
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.render()
			}
		}
	}()
}

func (p *progressDisplay) render() {
	p.mu.Lock()
	s := p.scheduler
	finished := p.finished
	p.mu.Unlock()
	if s == nil {
		return
	}

	items := s.Items()
	var active, queued int
	line := ""
	for _, item := range items {
		switch {
		case item.Status.IsActive():
			active++
			if item.TotalBytes > 0 {
				line += fmt.Sprintf("  %3d%% %s/%s  %s\n", item.Progress,
					helpers.BytesToSize(uint64(item.BytesReceived)),
					helpers.BytesToSize(uint64(item.TotalBytes)),
					item.Resource.URL)
			} else {
				line += fmt.Sprintf("  %s received  %s\n",
					helpers.BytesToSize(uint64(item.BytesReceived)), item.Resource.URL)
			}
		case item.Status == models.StatusQueued:
			queued++
		}
	}
	header := fmt.Sprintf("Downloading: %d active, %d queued, %d finished\n", active, queued, finished)
	fmt.Fprint(p.writer, header+line)
}

func (p *progressDisplay) stop() {
	close(p.done)
	p.render()
	p.writer.Stop()
}
