package main

import (
	"bytes"
	"flag"
	"fmt"
	"io/ioutil"
	"mime/multipart"
	"os"
	"time"

	vegeta "github.com/tsenart/vegeta/lib"
	"github.com/tsenart/vegeta/lib/plot"

	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster/gen"
)

var (
	apiHost, proto, endpoint, jobID, createdBy, reportFilePath string
	freq, duration, rows                                       int
)

func init() {
	flag.StringVar(&apiHost, "host", "localhost:3000", "host to send requests to")
	flag.IntVar(&duration, "duration", 60, "seconds: the total time to run the test")
	flag.IntVar(&freq, "freq", 10, "the number of requests per second")
	flag.StringVar(&proto, "proto", "http", "protocol to use")
	flag.StringVar(&endpoint, "endpoint", "list", "target to exercise: upload, list, status, errors or template")
	flag.StringVar(&jobID, "job_id", "1", "import job id used by the status and errors targets")
	flag.IntVar(&rows, "rows", 100, "data rows in the generated roster sent by the upload target")
	flag.StringVar(&createdBy, "created_by", "perf-test", "created_by recorded on uploaded jobs")
	flag.StringVar(&reportFilePath, "report_path", "../../test_results/performance", "path to write the result.html")
	flag.Parse()

	// create folder if doesn't exist for storing the results
	if _, err := os.Stat(reportFilePath); os.IsNotExist(err) {
		err := os.MkdirAll(reportFilePath, os.ModePerm)
		if err != nil {
			panic(err)
		}
	}
}

func main() {
	targeter := makeTarget()
	results := runAPITest(targeter)
	var buf bytes.Buffer
	if _, err := results.WriteTo(&buf); err != nil {
		panic(err)
	}
	writeResults(fmt.Sprintf("%s_api_plot", endpoint), buf)
}

func makeTarget() vegeta.Targeter {
	base := fmt.Sprintf("%s://%s/api/v1/imports", proto, apiHost)

	switch endpoint {
	case "upload":
		body, contentType := rosterBody()
		return vegeta.NewStaticTargeter(vegeta.Target{
			Method: "POST",
			URL:    base,
			Body:   body,
			Header: map[string][]string{"Content-Type": {contentType}},
		})
	case "status":
		return getTarget(fmt.Sprintf("%s/%s", base, jobID))
	case "errors":
		return getTarget(fmt.Sprintf("%s/%s/errors", base, jobID))
	case "template":
		return getTarget(base + "/template")
	default:
		return getTarget(base)
	}
}

func getTarget(url string) vegeta.Targeter {
	return vegeta.NewStaticTargeter(vegeta.Target{
		Method: "GET",
		URL:    url,
		Header: map[string][]string{"Accept": {"application/json"}},
	})
}

// rosterBody renders one synthetic roster up front so every request in the
// attack reuses the same multipart payload.
func rosterBody() ([]byte, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", "perf-roster.csv")
	if err != nil {
		panic(err)
	}
	if err := gen.WriteRoster(fw, roster.TemplateColumns(), rows); err != nil {
		panic(err)
	}
	if err := w.WriteField("created_by", createdBy); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}

	return buf.Bytes(), w.FormDataContentType()
}

func runAPITest(target vegeta.Targeter) *plot.Plot {
	fmt.Printf("running api performance for: %s\n", endpoint)
	title := plot.Title(fmt.Sprintf("apiTest_%s", endpoint))
	p := plot.New(title)
	defer p.Close()

	// 10 requests every second for 60 seconds = 600 total calls
	d := time.Second * time.Duration(duration)
	rate := vegeta.Rate{Freq: freq, Per: time.Second}
	plotAttack(p, target, rate, d)

	return p
}

func plotAttack(p *plot.Plot, t vegeta.Targeter, r vegeta.Rate, du time.Duration) {
	attacker := vegeta.NewAttacker()
	for results := range attacker.Attack(t, r, du, fmt.Sprintf("%dps:", r.Freq)) {
		err := p.Add(results)
		if err != nil {
			panic(err)
		}
	}
}

func writeResults(filename string, buf bytes.Buffer) {
	data := buf.Bytes()
	if len(data) > 0 {
		fn := fmt.Sprintf("%s/%s.html", reportFilePath, filename)
		fmt.Printf("Writing results: %s\n", fn)
		err := ioutil.WriteFile(fn, data, 0644)
		if err != nil {
			panic(err)
		}
	}
}
