package history

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookConfig configures batched webhook export
type WebhookConfig struct {
	URL       string
	APIKey    string
	BatchSize int
	Interval  time.Duration

	// MaxBuffered caps records held while the webhook is failing; the oldest
	// are dropped first. Defaults to four batches.
	MaxBuffered int
}

// WebhookExporter buffers records and posts them in batches, either when the
// batch is full or on every interval tick.
type WebhookExporter struct {
	config     WebhookConfig
	httpClient *http.Client

	mutex      sync.Mutex
	batch      []Record
	lastExport time.Time
	dropped    int

	exportContext context.Context
	exportCancel  context.CancelFunc
	wg            sync.WaitGroup
}

// NewWebhookExporter creates an exporter and starts its periodic flush.
// A nil httpClient gets a TLS 1.2+ client with a 10s timeout.
func NewWebhookExporter(config WebhookConfig, httpClient *http.Client) (*WebhookExporter, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.MaxBuffered <= 0 {
		config.MaxBuffered = 4 * config.BatchSize
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}

	e := &WebhookExporter{
		config:     config,
		httpClient: httpClient,
		batch:      make([]Record, 0, config.BatchSize),
	}

	e.exportContext, e.exportCancel = context.WithCancel(context.Background())
	e.wg.Add(1)
	go e.periodicExport()

	logrus.WithField("interval", config.Interval).Info("History webhook exporter initialized")
	return e, nil
}

// Write buffers records; a full batch is exported in the background
func (e *WebhookExporter) Write(_ context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	e.mutex.Lock()
	e.batch = append(e.batch, records...)
	e.trimLocked()
	full := len(e.batch) >= e.config.BatchSize
	e.mutex.Unlock()

	if full {
		go func() {
			if err := e.Flush(e.exportContext); err != nil {
				logrus.WithError(err).Error("Failed to export history batch")
			}
		}()
	}
	return nil
}

// periodicExport flushes on every tick until Stop is called
func (e *WebhookExporter) periodicExport() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Flush(e.exportContext); err != nil {
				logrus.WithError(err).Error("Failed to export history batch")
			}
		case <-e.exportContext.Done():
			return
		}
	}
}

// Flush posts the buffered records. On failure they are put back for the
// next attempt.
func (e *WebhookExporter) Flush(ctx context.Context) error {
	e.mutex.Lock()
	if len(e.batch) == 0 {
		e.mutex.Unlock()
		return nil
	}
	records := e.batch
	e.batch = make([]Record, 0, e.config.BatchSize)
	e.mutex.Unlock()

	if err := e.post(ctx, records); err != nil {
		e.mutex.Lock()
		e.batch = append(records, e.batch...)
		e.trimLocked()
		e.mutex.Unlock()
		return err
	}

	e.mutex.Lock()
	e.lastExport = time.Now()
	e.mutex.Unlock()

	logrus.WithField("count", len(records)).Debug("Exported history records")
	return nil
}

// trimLocked drops the oldest records beyond MaxBuffered; callers hold mutex.
func (e *WebhookExporter) trimLocked() {
	excess := len(e.batch) - e.config.MaxBuffered
	if excess <= 0 {
		return
	}
	e.batch = append(make([]Record, 0, e.config.MaxBuffered), e.batch[excess:]...)
	e.dropped += excess
	logrus.WithFields(logrus.Fields{
		"dropped": excess,
		"limit":   e.config.MaxBuffered,
	}).Warn("History buffer full, dropping oldest records")
}

func (e *WebhookExporter) post(ctx context.Context, records []Record) error {
	exportData := struct {
		Records    []Record `json:"records"`
		ExportTime string   `json:"export_time"`
		Count      int      `json:"count"`
	}{
		Records:    records,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(records),
	}

	jsonData, err := json.Marshal(exportData)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Stop ends the periodic export and flushes what is left
func (e *WebhookExporter) Stop(ctx context.Context) error {
	e.exportCancel()
	e.wg.Wait()
	return e.Flush(ctx)
}

// Status reports the exporter state
func (e *WebhookExporter) Status() map[string]any {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	status := map[string]any{
		"batch_size":      e.config.BatchSize,
		"export_interval": e.config.Interval.String(),
		"current_batch":   len(e.batch),
		"dropped":         e.dropped,
	}
	if !e.lastExport.IsZero() {
		status["last_export"] = e.lastExport.Format(time.RFC3339)
	}
	return status
}
