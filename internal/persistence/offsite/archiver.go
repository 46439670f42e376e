package offsite

import (
	"context"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

type Stats struct {
	ScannedTotal       uint64
	UploadSuccessTotal uint64
	UploadFailTotal    uint64
	LastSuccessUnix    int64
	LastErrorUnix      int64
}

// Archiver periodically scans the audit directory and uploads files whose
// rotation hour has passed. The file for the current hour is still being
// appended to and is skipped until it closes.
type Archiver struct {
	client   *Client
	auditDir string
	prefix   string
	logger   *log.Logger

	uploaded map[string]struct{}

	scannedTotal       atomic.Uint64
	uploadSuccessTotal atomic.Uint64
	uploadFailTotal    atomic.Uint64
	lastSuccessUnix    atomic.Int64
	lastErrorUnix      atomic.Int64
}

func NewArchiver(client *Client, dataDir, prefix string, logger *log.Logger) *Archiver {
	return &Archiver{
		client:   client,
		auditDir: filepath.Join(dataDir, "audit"),
		prefix:   strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger:   logger,
		uploaded: map[string]struct{}{},
	}
}

// Run scans on the given interval until ctx is done. A final scan on
// shutdown picks up the file the server just closed.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			a.scan(context.Background(), true)
			return
		case <-t.C:
			a.scan(ctx, false)
		}
	}
}

func (a *Archiver) Stats() Stats {
	return Stats{
		ScannedTotal:       a.scannedTotal.Load(),
		UploadSuccessTotal: a.uploadSuccessTotal.Load(),
		UploadFailTotal:    a.uploadFailTotal.Load(),
		LastSuccessUnix:    a.lastSuccessUnix.Load(),
		LastErrorUnix:      a.lastErrorUnix.Load(),
	}
}

func (a *Archiver) scan(ctx context.Context, includeCurrent bool) {
	a.scannedTotal.Add(1)

	entries, err := os.ReadDir(a.auditDir)
	if err != nil {
		return
	}
	currentHour := time.Now().UTC().Format("2006-01-02-15")

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		if _, done := a.uploaded[name]; done {
			continue
		}
		if !includeCurrent && strings.Contains(name, currentHour) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		if err := a.uploadWithRetry(ctx, name); err != nil {
			a.uploadFailTotal.Add(1)
			a.lastErrorUnix.Store(time.Now().UTC().Unix())
			a.printf("offsite upload failed file=%s err=%v", name, err)
			continue
		}
		a.uploaded[name] = struct{}{}
		a.uploadSuccessTotal.Add(1)
		a.lastSuccessUnix.Store(time.Now().UTC().Unix())
		a.printf("offsite uploaded file=%s", name)
	}
}

func (a *Archiver) uploadWithRetry(ctx context.Context, name string) error {
	key := path.Join(a.prefix, "audit", name)
	local := filepath.Join(a.auditDir, name)

	const maxAttempts = 4
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
		err := a.client.PutFile(ctx2, key, local)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts {
			backoff := time.Duration(attempt*attempt) * 200 * time.Millisecond
			time.Sleep(backoff)
		}
	}
	return lastErr
}

func (a *Archiver) printf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
