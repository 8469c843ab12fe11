// Package notify posts run summaries to an optional webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// RunSummary is the payload posted after each finished load job.
type RunSummary struct {
	JobID    string `json:"job_id"`
	Stage    string `json:"stage"`
	Subject  string `json:"subject"`
	Status   string `json:"status"`
	Raw      int64  `json:"total_raw"`
	Kept     int64  `json:"total_kept"`
	Excluded int64  `json:"total_excluded"`
	Error    string `json:"error,omitempty"`
}

// SendWebhook posts the summary to url. A blank url disables notifications.
func SendWebhook(url string, summary RunSummary) error {
	if url == "" {
		return nil
	}
	buf, _ := json.Marshal(summary)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
