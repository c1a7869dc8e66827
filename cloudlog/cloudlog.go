// Package cloudlog takes care of setting up a Google Cloud logger.
package cloudlog

import (
	"context"
	"log"

	logging "cloud.google.com/go/logging"
	"google.golang.org/api/option"
)

var (
	// Logger is an already set up instance of *log.Logger
	Logger *log.Logger

	client  *logging.Client
	working bool
)

// Init connects to Cloud Logging for the given project. When the client can't be created
// everything is still logged locally.
func Init(ctx context.Context, projectID, logName string, opts ...option.ClientOption) {
	var err error
	client, err = logging.NewClient(ctx, projectID, opts...)
	if err != nil {
		log.Printf("Failed to create logging client: %v", err)
		return
	}

	Logger = client.Logger(logName).StandardLogger(logging.Info)
	working = true
}

// Close flushes pending entries to Cloud Logging.
func Close() {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Printf("Failed to close logging client: %v", err)
	}
	working = false
}

// Print is a proxy for Logger.Print
func Print(v ...interface{}) {
	log.Print(v...)
	if working {
		Logger.Print(v...)
	}
}

// Println is a proxy for Logger.Println
func Println(v ...interface{}) {
	log.Println(v...)
	if working {
		Logger.Println(v...)
	}
}

// Printf is a proxy for Logger.Printf
func Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
	if working {
		Logger.Printf(format, v...)
	}
}

// Fatal is a proxy for Logger.Fatal
func Fatal(v ...interface{}) {
	if working {
		Logger.Print(v...)
		Close()
	}
	log.Fatal(v...)
}

// Fatalf is a proxy for Logger.Fatalf
func Fatalf(format string, v ...interface{}) {
	if working {
		Logger.Printf(format, v...)
		Close()
	}
	log.Fatalf(format, v...)
}
