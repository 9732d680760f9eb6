package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrServiceNotFound is returned when the pose service script cannot be located.
var ErrServiceNotFound = errors.New("pose_service.py not found")

// MoveNetDetector implements Detector using a Python MoveNet subprocess.
//
// Protocol: each request is a 4-byte big-endian length followed by a JPEG
// frame on stdin; each response is a single JSON line on stdout.
type MoveNetDetector struct {
	config     Config
	scriptPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	idleTimer  *time.Timer
	idleGen    uint64
}

// NewMoveNetDetector creates a new MoveNet detector.
// The Python process is started lazily on first detection.
func NewMoveNetDetector(config Config) (*MoveNetDetector, error) {
	scriptPath := config.ScriptPath
	if scriptPath == "" {
		scriptPath = findPoseScript()
	} else if _, err := os.Stat(scriptPath); err != nil {
		scriptPath = ""
	}
	if scriptPath == "" {
		return nil, ErrServiceNotFound
	}
	if config.Model == "" {
		config.Model = ModelLightning
	}
	if config.IdleTimeoutSec <= 0 {
		config.IdleTimeoutSec = DefaultConfig().IdleTimeoutSec
	}

	return &MoveNetDetector{
		config:     config,
		scriptPath: scriptPath,
	}, nil
}

// Detect sends a frame to the pose service and returns the detected landmarks.
func (d *MoveNetDetector) Detect(frame *gocv.Mat) (PoseSample, error) {
	if frame == nil || frame.Empty() {
		return PoseSample{}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return PoseSample{}, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return PoseSample{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		d.abort()
		return PoseSample{}, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		d.abort()
		return PoseSample{}, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		d.abort()
		return PoseSample{}, fmt.Errorf("read response: %w", err)
	}

	sample, err := parseResponse(line, time.Now())
	if err != nil {
		return PoseSample{}, err
	}

	d.resetIdleTimer()

	return sample, nil
}

// Close shuts down the Python process.
func (d *MoveNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MoveNetDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := d.config.Python
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.scriptPath, "--model", d.config.Model)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	logrus.WithFields(logrus.Fields{
		"script": d.scriptPath,
		"model":  d.config.Model,
	}).Info("pose service started")

	return nil
}

// abort tears the service down after a broken pipe so the next call restarts it.
func (d *MoveNetDetector) abort() {
	if err := d.shutdown(); err != nil {
		logrus.Warnf("pose service exited: %v", err)
	}
}

func (d *MoveNetDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MoveNetDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleGen++
	gen := d.idleGen
	d.idleTimer = time.AfterFunc(time.Duration(d.config.IdleTimeoutSec)*time.Second, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.idleShutdown(gen)
	})
}

// idleShutdown stops the service unless it was used after timer gen was
// armed. A timer that already fired can still be waiting on mu while Detect
// rearms it. Callers hold mu.
func (d *MoveNetDetector) idleShutdown(gen uint64) bool {
	if gen != d.idleGen {
		return false
	}
	if err := d.shutdown(); err != nil {
		logrus.Debugf("pose service idle shutdown: %v", err)
	}
	return true
}

// poseResponse is the JSON line written by the pose service. Keypoints are
// named when the service knows the names, otherwise they arrive in model order.
type poseResponse struct {
	Poses []struct {
		Keypoints []struct {
			Name  string  `json:"name"`
			X     float64 `json:"x"`
			Y     float64 `json:"y"`
			Score float64 `json:"score"`
		} `json:"keypoints"`
		Score float64 `json:"score"`
	} `json:"poses"`
	Error string `json:"error,omitempty"`
}

// parseResponse converts a service response into a sample for the best-scoring pose.
func parseResponse(line []byte, ts time.Time) (PoseSample, error) {
	var resp poseResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return PoseSample{}, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return PoseSample{}, fmt.Errorf("pose service: %s", resp.Error)
	}
	if len(resp.Poses) == 0 {
		return PoseSample{Timestamp: ts}, nil
	}

	best := 0
	for i, p := range resp.Poses {
		if p.Score > resp.Poses[best].Score {
			best = i
		}
	}
	kps := resp.Poses[best].Keypoints

	named := len(kps) > 0
	for _, kp := range kps {
		if kp.Name == "" {
			named = false
			break
		}
	}

	if !named {
		points := make([]IndexedPoint, len(kps))
		for i, kp := range kps {
			points[i] = IndexedPoint{X: kp.X, Y: kp.Y, Score: kp.Score}
		}
		return FromIndexed(points, ts), nil
	}

	sample := PoseSample{
		Landmarks: make([]Landmark, len(kps)),
		Timestamp: ts,
	}
	for i, kp := range kps {
		sample.Landmarks[i] = Landmark{Name: kp.Name, X: kp.X, Y: kp.Y, Confidence: kp.Score}
	}
	return sample, nil
}

func findPoseScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/pose_service.py",
		"../scripts/pose_service.py",
		filepath.Join(execDir, "scripts/pose_service.py"),
		filepath.Join(os.Getenv("HOME"), ".repcounter/scripts/pose_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".repcounter/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
