package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/TFMV/subwatch/internal/watch"
	"gopkg.in/yaml.v3"
)

// eventRecord is the serialized form of a result.
type eventRecord struct {
	Time          time.Time `json:"time" yaml:"time"`
	Kind          string    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Action        string    `json:"action,omitempty" yaml:"action,omitempty"`
	Path          string    `json:"path,omitempty" yaml:"path,omitempty"`
	SecondaryPath string    `json:"secondary_path,omitempty" yaml:"secondary_path,omitempty"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func newEventRecord(r watch.Result) eventRecord {
	if r.Err != nil {
		return eventRecord{Time: time.Now(), Error: r.Err.Error()}
	}
	return eventRecord{
		Time:          r.Event.Time,
		Kind:          r.Event.Kind.String(),
		Action:        r.Event.Action.String(),
		Path:          r.Event.Path,
		SecondaryPath: r.Event.SecondaryPath,
	}
}

// encoder writes one value in an output format.
type encoder func(v any) error

func newEncoder(format string, w io.Writer) (encoder, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return nil, nil
	case "json":
		enc := json.NewEncoder(w)
		return enc.Encode, nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		// Each value is written as its own document.
		return enc.Encode, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
}

// eventPrinter returns a handler that renders results to w.
func eventPrinter(format string, w io.Writer) (watch.Handler, error) {
	enc, err := newEncoder(format, w)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return func(_ context.Context, r watch.Result) error {
			if r.Err != nil {
				_, err := fmt.Fprintf(w, "ERROR: %v\n", r.Err)
				return err
			}
			_, err := fmt.Fprintf(w, "%s %s\n", r.Event.Time.Format("15:04:05.000"), r.Event)
			return err
		}, nil
	}
	return func(_ context.Context, r watch.Result) error {
		return enc(newEventRecord(r))
	}, nil
}
