package capture

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/autocam/internal/log"
)

// The built-in FaceTime camera is the one that reports 1080p at 30 fps among
// the first few device indices.
const (
	maxProbeIndex = 3
	primaryWidth  = 1920
	primaryHeight = 1080
	primaryFPS    = 30
	profilerWait  = 10 * time.Second
)

// DeviceInfo is what a probe learned about one capture index.
type DeviceInfo struct {
	Index  int
	Width  float64
	Height float64
	FPS    float64
}

func (d DeviceInfo) isPrimary() bool {
	return d.Width == primaryWidth && d.Height == primaryHeight && d.FPS == primaryFPS
}

// Discovery finds the capture index of the primary camera.
type Discovery struct {
	ListCameras func(ctx context.Context) ([]string, error)
	Probe       func(index int) (DeviceInfo, bool)
}

// NewDiscovery returns a Discovery backed by system_profiler and OpenCV.
func NewDiscovery() *Discovery {
	return &Discovery{
		ListCameras: listSystemCameras,
		Probe:       probeDevice,
	}
}

// FindPrimaryIndex returns the index of the built-in FaceTime camera, or
// fallback when it cannot be identified.
func (d *Discovery) FindPrimaryIndex(ctx context.Context, fallback int) int {
	logger := log.WithComponent("capture")

	cameras, err := d.ListCameras(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not list system cameras")
	}

	for _, name := range cameras {
		if !strings.Contains(name, "FaceTime") {
			continue
		}
		logger.Info().Str("camera", name).Msg("found primary camera")

		for i := 0; i < maxProbeIndex; i++ {
			info, ok := d.Probe(i)
			if !ok {
				continue
			}
			if info.isPrimary() {
				logger.Info().Int("index", i).Msg("identified primary camera")
				return i
			}
		}
	}

	logger.Warn().Int("index", fallback).Msg("could not detect primary camera, using configured index")
	return fallback
}

func listSystemCameras(ctx context.Context) ([]string, error) {
	if runtime.GOOS != "darwin" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, profilerWait)
	defer cancel()

	out, err := exec.CommandContext(ctx, "system_profiler", "SPCameraDataType").Output()
	if err != nil {
		return nil, err
	}
	return parseCameraNames(string(out)), nil
}

// parseCameraNames picks the device heading lines out of system_profiler output.
func parseCameraNames(output string) []string {
	var cameras []string
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, ":") {
			continue
		}
		if strings.Contains(line, "Camera") || strings.Contains(line, "iSight") || strings.Contains(line, "FaceTime") {
			cameras = append(cameras, strings.TrimSpace(line))
		}
	}
	return cameras
}

func probeDevice(index int) (DeviceInfo, bool) {
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return DeviceInfo{}, false
	}
	defer capture.Close()

	if !capture.IsOpened() {
		return DeviceInfo{}, false
	}

	return DeviceInfo{
		Index:  index,
		Width:  capture.Get(gocv.VideoCaptureFrameWidth),
		Height: capture.Get(gocv.VideoCaptureFrameHeight),
		FPS:    capture.Get(gocv.VideoCaptureFPS),
	}, true
}
