package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ShepherdCMS/shepherd-app/conf"
	"github.com/ShepherdCMS/shepherd-app/shepherd/utils"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/queueing"
	log "github.com/sirupsen/logrus"
)

func init() {
	createWorkerDirs()
	log.SetFormatter(&log.JSONFormatter{})
	log.SetReportCaller(true)
	filePath := conf.GetEnv("SHEPHERD_WORKER_ERROR_LOG")

	/* #nosec -- 0640 permissions required for Splunk ingestion */
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err == nil {
		log.SetOutput(file)
	} else {
		log.Info("Failed to open worker error log file; using default stderr")
	}
}

// The upload directory is a volume shared with the API; whichever process
// boots first creates it.
func createWorkerDirs() {
	uploadDir := utils.FromEnv("SHEPHERD_UPLOAD_DIR", "/tmp/shepherd/uploads")
	err := os.MkdirAll(uploadDir, 0744)
	if err != nil {
		log.Fatal(err)
	}
}

func waitForSig() {
	signalChan := make(chan os.Signal, 1)
	defer close(signalChan)

	signal.Notify(signalChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	exitChan := make(chan int)
	defer close(exitChan)

	go func() {
		for {
			s := <-signalChan
			switch s {
			case syscall.SIGINT:
				fmt.Println("interrupt")
				exitChan <- 0
			case syscall.SIGTERM:
				fmt.Println("force stop")
				exitChan <- 0
			case syscall.SIGQUIT:
				fmt.Println("stop and core dump")
				exitChan <- 0
			}
		}
	}()

	code := <-exitChan
	os.Exit(code)
}

func main() {
	fmt.Println("Starting shepherdworker...")

	q := queueing.StartQue(log.StandardLogger(), conf.GetEnv("QUEUE_DATABASE_URL"),
		utils.GetEnvInt("WORKER_POOL_SIZE", 2))
	defer q.StopQue()

	if hInt, err := strconv.Atoi(conf.GetEnv("WORKER_HEALTH_INT_SEC")); err == nil {
		healthLogger := NewHealthLogger()
		ticker := time.NewTicker(time.Duration(hInt) * time.Second)
		quit := make(chan struct{})
		go func() {
			for {
				select {
				case <-ticker.C:
					healthLogger.Log()
				case <-quit:
					ticker.Stop()
					return
				}
			}
		}()
	}

	waitForSig()
}
