package watch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FormatEvent expands the placeholders of template for ev:
//
//	{}       current path of the entry
//	{old}    path before a rename (same as {} otherwise)
//	{base}   base name of the current path
//	{dir}    directory of the current path
//	{event}  action name
//	{kind}   file or directory
//	{time}   RFC 3339 timestamp
//
// Quoted variants such as {""} and {"base"} insert Go-quoted values.
func FormatEvent(template string, ev Event) string {
	path := ev.CurrentPath()
	values := []struct{ key, val string }{
		{"", path},
		{"old", ev.Path},
		{"base", filepath.Base(path)},
		{"dir", filepath.Dir(path)},
		{"event", ev.Action.String()},
		{"kind", ev.Kind.String()},
		{"time", ev.Time.Format(time.RFC3339)},
	}

	str := template
	for _, v := range values {
		str = strings.ReplaceAll(str, "{"+v.key+"}", v.val)
		str = strings.ReplaceAll(str, `{"`+v.key+`"}`, strconv.Quote(v.val))
	}
	return str
}

// executeCommand runs cmdStr, split on whitespace, and prints its output.
func executeCommand(ctx context.Context, cmdStr string) error {
	args := strings.Fields(cmdStr)
	if len(args) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("command error: %s: %w", stderr.String(), err)
		}
		return err
	}

	if stdout.Len() > 0 {
		fmt.Print(stdout.String())
	}

	return nil
}

// WatchWithExec watches root and runs a command for each event. A failing
// command is logged and does not stop the watch.
func WatchWithExec(ctx context.Context, root string, opts Options, cmdTemplate string) error {
	return Watch(ctx, root, opts, func(ctx context.Context, result Result) error {
		if result.Err != nil {
			fmt.Printf("ERROR: %v\n", result.Err)
			return nil
		}
		if err := executeCommand(ctx, FormatEvent(cmdTemplate, result.Event)); err != nil {
			fmt.Printf("ERROR: %s: %v\n", result.Event, err)
		}
		return nil
	})
}

// WatchWithFormat watches root and prints each event through formatTemplate.
func WatchWithFormat(ctx context.Context, root string, opts Options, formatTemplate string) error {
	return Watch(ctx, root, opts, func(ctx context.Context, result Result) error {
		if result.Err != nil {
			fmt.Printf("ERROR: %v\n", result.Err)
			return nil
		}
		fmt.Println(FormatEvent(formatTemplate, result.Event))
		return nil
	})
}
