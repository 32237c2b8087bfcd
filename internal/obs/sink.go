package obs

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ayusman/autocam/internal/log"
	"github.com/ayusman/autocam/internal/scene"
)

// Sink applies scene commands to OBS. It dials on first use and again after a
// broken connection. A failed command is reported, never retried.
type Sink struct {
	cfg    Config
	dial   func(context.Context, Config) (*Client, error)
	logger zerolog.Logger

	mu     sync.Mutex
	client *Client
}

// NewSink creates a sink for the given connection settings. No connection is
// made until Connect or the first SwitchTo.
func NewSink(cfg Config) *Sink {
	return &Sink{
		cfg:    cfg,
		dial:   Dial,
		logger: log.WithComponent("obs"),
	}
}

// Connect dials eagerly.
func (s *Sink) Connect(ctx context.Context) error {
	_, err := s.session(ctx)
	return err
}

func (s *Sink) session(ctx context.Context) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.client.Healthy() {
		return s.client, nil
	}
	if s.client != nil {
		s.logger.Warn().Msg("obs connection lost, redialing")
		s.client = nil
	}

	c, err := s.dial(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	s.client = c
	return c, nil
}

// SwitchTo puts the scene on program.
func (s *Sink) SwitchTo(ctx context.Context, id scene.ID) error {
	c, err := s.session(ctx)
	if err != nil {
		return fmt.Errorf("switch to %q: %w", id, err)
	}
	if err := c.SetCurrentProgramScene(ctx, string(id)); err != nil {
		return fmt.Errorf("switch to %q: %w", id, err)
	}
	return nil
}

// CurrentScene returns the scene OBS has on program.
func (s *Sink) CurrentScene(ctx context.Context) (scene.ID, error) {
	c, err := s.session(ctx)
	if err != nil {
		return scene.None, err
	}
	name, err := c.GetCurrentProgramScene(ctx)
	if err != nil {
		return scene.None, err
	}
	return scene.ID(name), nil
}

// MissingScenes returns those of want that OBS does not know about.
func (s *Sink) MissingScenes(ctx context.Context, want ...scene.ID) ([]scene.ID, error) {
	c, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	list, err := c.GetSceneList(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(list))
	for _, info := range list {
		known[info.Name] = true
	}

	var missing []scene.ID
	for _, id := range want {
		if !known[string(id)] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Close drops the connection, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
