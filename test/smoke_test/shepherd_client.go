package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster/gen"
)

var (
	apiHost, proto, createdBy string
	timeout, httpRetry, rows  int
	keepJob                   bool
)

func init() {
	flag.StringVar(&apiHost, "host", "localhost:3000", "host to send requests to")
	flag.StringVar(&proto, "proto", "http", "protocol to use")
	flag.IntVar(&timeout, "timeout", 300, "amount of time to wait for the import to finish.")
	flag.IntVar(&httpRetry, "httpRetry", 3, "amount of times to retry an http request")
	flag.IntVar(&rows, "rows", 50, "data rows in the generated roster")
	flag.StringVar(&createdBy, "created_by", "smoke-test", "created_by recorded on the import job")
	flag.BoolVar(&keepJob, "keep", false, "leave the finished job in place instead of deleting it")
	flag.Parse()

	log.SetReportCaller(true)
}

func main() {
	c := &client{httpClient: &http.Client{Timeout: 10 * time.Second}, retries: httpRetry}

	log.Infof("roster import request with %d generated rows", rows)

	jobURL, err := startImport(c, rows)
	if err != nil {
		log.Errorf("Failed to start import %s", err.Error())
		os.Exit(1)
	}

	job, err := waitForImport(c, jobURL, time.Duration(timeout)*time.Second)
	if err != nil {
		log.Errorf("Failed waiting on import %s", err.Error())
		os.Exit(1)
	}

	if err := validateImport(c, jobURL, job); err != nil {
		log.Errorf("Import validation failed %s", err.Error())
		os.Exit(1)
	}
	log.Infof("Finished validating import job %d", job.ID)

	if !keepJob {
		if err := deleteImport(c, jobURL); err != nil {
			log.Errorf("Failed to delete finished import %s", err.Error())
			os.Exit(1)
		}
		log.Infof("Deleted import job %d", job.ID)
	}

	log.Info("done.")
}

func startImport(c *client, n int) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", "smoke-roster.csv")
	if err != nil {
		return "", err
	}
	if err := gen.WriteRoster(fw, roster.TemplateColumns(), n); err != nil {
		return "", err
	}
	if err := w.WriteField("created_by", createdBy); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s://%s/api/v1/imports", proto, apiHost)
	req, err := http.NewRequest("POST", url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		var accepted struct {
			JobID     int64 `json:"job_id"`
			TotalRows int   `json:"total_rows"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
			return "", err
		}
		log.Infof("Import job %d accepted with %d rows", accepted.JobID, accepted.TotalRows)
		return resp.Header.Get("Content-Location"), nil
	default:
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			log.Errorf("Failed to read response body %s", err.Error())
		}
		return "", fmt.Errorf("request %s has unexpected response code received %d, body '%s'",
			req.URL.String(), resp.StatusCode, body)
	}
}

func waitForImport(c *client, jobURL string, timeout time.Duration) (*models.ImportJob, error) {
	check := func() (*models.ImportJob, error) {
		req, err := http.NewRequest("GET", jobURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, err := ioutil.ReadAll(resp.Body)
			if err != nil {
				log.Errorf("Failed to read response body %s", err.Error())
			}
			return nil, fmt.Errorf("request %s has unexpected response code received %d, body '%s'",
				req.URL.String(), resp.StatusCode, body)
		}

		var job models.ImportJob
		if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
			return nil, err
		}

		switch job.Status {
		case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
			return &job, nil
		default:
			log.Infof("Job has not completed %s", job.StatusMessage())
			<-time.After(5 * time.Second)
			return nil, nil
		}
	}

	expire := time.After(timeout)
	for {
		select {
		case <-expire:
			return nil, fmt.Errorf("failed to get response in %s", timeout.String())
		default:
			job, err := check()
			if err != nil {
				return nil, err
			}
			if job == nil {
				continue
			}
			return job, nil
		}
	}
}

// validateImport expects every generated row to land. Warnings are fine
// (generated rosters reference groups that may not exist) but failed rows
// are not.
func validateImport(c *client, jobURL string, job *models.ImportJob) error {
	if job.Status != models.JobStatusCompleted {
		return fmt.Errorf("job %d finished %s", job.ID, job.Status)
	}
	if job.SuccessfulRecords != rows || job.FailedRecords != 0 {
		return fmt.Errorf("job %d imported %d of %d rows with %d failures",
			job.ID, job.SuccessfulRecords, job.TotalRecords, job.FailedRecords)
	}

	req, err := http.NewRequest("GET", jobURL+"/errors", nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			log.Errorf("Failed to read response body %s", err.Error())
		}
		return fmt.Errorf("request %s has unexpected response code received %d, body '%s'",
			req.URL.String(), resp.StatusCode, body)
	}

	var errLog struct {
		FileName    string                `json:"file_name"`
		FailedCount int                   `json:"failed_count"`
		Errors      []*models.ImportError `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errLog); err != nil {
		return err
	}

	for _, e := range errLog.Errors {
		log.Infof("row %d [%s]: %s", e.RowNumber, e.Severity, e.Message)
	}
	if errLog.FailedCount != 0 {
		return fmt.Errorf("error log reports %d failed rows", errLog.FailedCount)
	}

	return nil
}

func deleteImport(c *client, jobURL string) error {
	req, err := http.NewRequest("DELETE", jobURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			log.Errorf("Failed to read response body %s", err.Error())
		}
		return fmt.Errorf("request %s has unexpected response code received %d, body '%s'",
			req.URL.String(), resp.StatusCode, body)
	}

	return nil
}

type client struct {
	httpClient *http.Client

	retries int
}

func (c *client) Do(req *http.Request) (*http.Response, error) {
	for i := 0; i <= c.retries; i++ {
		// Rewind the body so a retried POST resends the full payload
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return nil, err
		}

		return resp, nil
	}

	return nil, fmt.Errorf("failed to receive response after %d tries", c.retries)
}
