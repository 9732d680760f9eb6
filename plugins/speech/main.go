// Package main provides a speech plugin that reads rep counts aloud.
// It uses `say` on macOS and espeak (or espeak-ng, spd-say) elsewhere.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action   string          `json:"action"`
	Event    string          `json:"event"`
	Phase    string          `json:"phase"`
	RepCount int             `json:"rep_count"`
	Text     string          `json:"text"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SpeakParams are optional voice settings.
type SpeakParams struct {
	Voice string `json:"voice"`
	Rate  int    `json:"rate"` // words per minute
}

var errNoEngine = errors.New("no speech engine found")

// engines lists candidate programs per OS in order of preference.
var engines = map[string][]string{
	"darwin": {"say"},
	"linux":  {"espeak-ng", "espeak", "spd-say"},
}

func main() {
	resp := handle(os.Stdin, exec.LookPath, run)
	json.NewEncoder(os.Stdout).Encode(resp)
}

type lookPathFunc func(string) (string, error)
type runFunc func(name string, args ...string) error

func handle(in io.Reader, lookPath lookPathFunc, runCmd runFunc) Response {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return failure(fmt.Sprintf("failed to decode request: %v", err))
	}

	engine, err := findEngine(runtime.GOOS, lookPath)

	switch req.Action {
	case "ping":
		if err != nil {
			return failure(err.Error())
		}
		data, _ := json.Marshal(map[string]string{"engine": engine})
		return Response{Success: true, Data: data}

	case "speak":
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return failure("text is required")
		}
		if err != nil {
			return failure(err.Error())
		}

		var p SpeakParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return failure(fmt.Sprintf("failed to parse params: %v", err))
			}
		}

		name, args := buildCommand(engine, text, p)
		if err := runCmd(name, args...); err != nil {
			return failure(fmt.Sprintf("speak failed: %v", err))
		}
		return Response{Success: true}

	default:
		return failure(fmt.Sprintf("unknown action: %s", req.Action))
	}
}

func findEngine(goos string, lookPath lookPathFunc) (string, error) {
	for _, name := range engines[goos] {
		if _, err := lookPath(name); err == nil {
			return name, nil
		}
	}
	return "", errNoEngine
}

// buildCommand returns the program and arguments that speak text.
func buildCommand(engine, text string, p SpeakParams) (string, []string) {
	var args []string
	switch engine {
	case "say":
		if p.Voice != "" {
			args = append(args, "-v", p.Voice)
		}
		if p.Rate > 0 {
			args = append(args, "-r", fmt.Sprint(p.Rate))
		}
	case "spd-say":
		args = append(args, "--wait")
		if p.Voice != "" {
			args = append(args, "-l", p.Voice)
		}
	default:
		if p.Voice != "" {
			args = append(args, "-v", p.Voice)
		}
		if p.Rate > 0 {
			args = append(args, "-s", fmt.Sprint(p.Rate))
		}
	}
	return engine, append(args, text)
}

func failure(msg string) Response {
	return Response{Success: false, Error: msg}
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
