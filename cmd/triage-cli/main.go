package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mikey/mail-triage/internal/adapters/remote"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/logging"
	"go.uber.org/zap"
)

var (
	// Event flags
	sender  = flag.String("sender", "", "Sender address of the event")
	subject = flag.String("subject", "", "Subject of the event")
	body    = flag.String("body", "", "Body of the event")
	file    = flag.String("file", "", "JSON detection event file (use stdin with '-')")

	// Remote classifier flags
	endpoint = flag.String("endpoint", "", "Remote classifier endpoint (rules only if empty)")
	timeout  = flag.Duration("timeout", 3*time.Second, "Remote classification timeout")

	// Output flags
	verbose = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog = flag.Bool("json-log", false, "Output logs in JSON format")
)

type output struct {
	Classification core.Category `json:"classification"`
	Source         string        `json:"source"`
	Topic          string        `json:"topic,omitempty"`
	SenderType     string        `json:"sender_type,omitempty"`
	Confidence     float64       `json:"confidence,omitempty"`
}

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	event, err := readEvent()
	if err != nil {
		logger.Fatal("Failed to read detection event", zap.Error(err))
	}

	result := classify(event, logger)

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode result", zap.Error(err))
	}
	fmt.Println(string(encoded))
}

// readEvent builds the detection event from the flags, or decodes it
// from a JSON file / stdin when -file is given.
func readEvent() (*core.Event, error) {
	if *file == "" {
		if *sender == "" {
			return nil, fmt.Errorf("either -file or -sender is required")
		}
		return &core.Event{
			Sender:  *sender,
			Subject: *subject,
			Body:    *body,
		}, nil
	}

	var reader io.Reader
	if *file == "-" {
		reader = os.Stdin
	} else {
		f, err := os.Open(*file)
		if err != nil {
			return nil, fmt.Errorf("failed to open event file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	var event core.Event
	if err := json.NewDecoder(reader).Decode(&event); err != nil {
		return nil, fmt.Errorf("failed to decode event JSON: %w", err)
	}
	if event.Sender == "" {
		return nil, fmt.Errorf("event has no sender")
	}
	return &event, nil
}

func classify(event *core.Event, logger *zap.Logger) output {
	if *endpoint != "" {
		client := remote.NewHTTPClassifier(*endpoint, *timeout, logger)
		result, err := client.Classify(context.Background(), event)
		if err == nil {
			return output{
				Classification: result.Purpose,
				Source:         "remote",
				Topic:          result.Topic,
				SenderType:     result.SenderType,
				Confidence:     result.Confidence,
			}
		}
		logger.Warn("Remote classification failed, falling back to rules", zap.Error(err))
	}

	rules := core.NewRuleClassifier(nil)
	return output{
		Classification: rules.Classify(event),
		Source:         "rules",
	}
}
