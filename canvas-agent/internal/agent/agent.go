// Package agent drives one collab session from the command line.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-canvas-live/pkg/channel"
	"github.com/weiawesome/wes-canvas-live/pkg/collab"
	"github.com/weiawesome/wes-canvas-live/pkg/contentapi"
	"github.com/weiawesome/wes-canvas-live/pkg/jwt"
	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

var ErrNotJoined = errors.New("agent: room not joined")

// Options configures an Agent.
type Options struct {
	URL        string
	ContentURL string
	Token      string
	RoomID     string
	RoomKind   protocol.RoomKind

	// Dial overrides channel.Dial in tests.
	Dial   func(ctx context.Context, cfg channel.Config) collab.Transport
	Logger *zerolog.Logger
}

// Agent is one participant: a channel, a session and a content client.
type Agent struct {
	opts    Options
	log     zerolog.Logger
	claims  *jwt.Claims
	content *contentapi.Client
	session *collab.Session
	sched   *trackingScheduler

	joinOnce sync.Once
	joined   chan struct{}

	mu       sync.Mutex
	writeErr error
}

// trackingScheduler lets the agent wait for background saves before it
// exits.
type trackingScheduler struct {
	collab.Scheduler
	wg sync.WaitGroup
}

func (s *trackingScheduler) Go(f func()) {
	s.wg.Add(1)
	s.Scheduler.Go(func() {
		defer s.wg.Done()
		f()
	})
}

// Open dials the room and wires a session onto it.
func Open(ctx context.Context, opts Options) (*Agent, error) {
	if opts.RoomID == "" {
		return nil, errors.New("agent: room is required")
	}
	claims, err := jwt.Peek(opts.Token)
	if err != nil {
		return nil, fmt.Errorf("agent: unusable token: %w", err)
	}
	if opts.RoomKind == "" {
		opts.RoomKind = protocol.RoomKindBoard
	}
	if opts.Dial == nil {
		opts.Dial = func(ctx context.Context, cfg channel.Config) collab.Transport {
			return channel.Dial(ctx, cfg)
		}
	}

	logger := pkglog.Component("agent")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str(pkglog.FieldRoomID, opts.RoomID).Str(pkglog.FieldUserID, claims.UserID).Logger()

	a := &Agent{
		opts:    opts,
		log:     logger,
		claims:  claims,
		content: contentapi.New(opts.ContentURL, contentapi.WithToken(opts.Token)),
		sched:   &trackingScheduler{Scheduler: collab.RealScheduler()},
		joined:  make(chan struct{}),
	}

	transport := opts.Dial(ctx, channel.Config{
		URL:        opts.URL,
		RoomID:     opts.RoomID,
		RoomKind:   opts.RoomKind,
		Credential: opts.Token,
		Logger:     &logger,
	})

	cfg := collab.SessionConfig{
		RoomID:    opts.RoomID,
		RoomKind:  opts.RoomKind,
		UserID:    claims.UserID,
		Transport: transport,
		Items:     a.content,
		Store:     a.content,
		Scheduler: a.sched,
		OnError: func(err error) {
			logger.Error().Err(err).Msg("persisted write failed")
			a.mu.Lock()
			a.writeErr = err
			a.mu.Unlock()
		},
		Logger: &logger,
	}
	if opts.RoomKind == protocol.RoomKindDocument {
		cfg.Documents = a.content
	}

	session, err := collab.OpenSession(cfg)
	if err != nil {
		transport.Close()
		return nil, err
	}
	a.session = session

	// The roster is seeded by the PresenceList that answers our join.
	session.Roster.OnChange(func([]protocol.Participant) {
		a.joinOnce.Do(func() { close(a.joined) })
	})

	return a, nil
}

// UserID is the id carried by the agent's token.
func (a *Agent) UserID() string {
	return a.claims.UserID
}

// Session exposes the underlying session.
func (a *Agent) Session() *collab.Session {
	return a.session
}

// WaitJoined blocks until the server answered the join or ctx ends.
func (a *Agent) WaitJoined(ctx context.Context) error {
	select {
	case <-a.joined:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrNotJoined, ctx.Err())
	}
}

// Close leaves the room.
func (a *Agent) Close() {
	a.session.Close()
}

// Watch logs roster changes, signals and structural events until ctx
// ends. With render > 0 it also prints item positions whenever they move.
func (a *Agent) Watch(ctx context.Context, render time.Duration) error {
	s := a.session

	s.Roster.OnChange(func(users []protocol.Participant) {
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = u.DisplayName
		}
		a.log.Info().Strs("users", names).Msg("roster")
	})
	s.Roster.OnLeave(func(userID string) {
		a.log.Info().Str(pkglog.FieldUserID, userID).Msg("left")
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var last string
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				line := a.describeSignals()
				if line != last && line != "" {
					a.log.Info().Msg(line)
				}
				last = line
			}
		}
	})

	if render > 0 {
		g.Go(func() error {
			err := collab.RenderLoop(gctx, s.Positions, render, func(rects map[string]collab.Rect) {
				for id, r := range rects {
					a.log.Info().Str(pkglog.FieldItemID, id).
						Float64("x", r.X).Float64("y", r.Y).
						Float64("w", r.Width).Float64("h", r.Height).Msg("position")
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

func (a *Agent) describeSignals() string {
	cursors := a.session.Signals.Cursors()
	if len(cursors) == 0 {
		return ""
	}
	out := ""
	for userID, c := range cursors {
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s@(%.0f,%.0f)", userID, c.X, c.Y)
		if f, ok := a.session.Signals.Focus(userID); ok && f.ItemID != "" {
			out += fmt.Sprintf("[%s %s]", f.ItemType, f.ItemID)
		}
	}
	return out
}

// Cursor sends count cursor samples moving right by step, one per
// interval.
func (a *Agent) Cursor(ctx context.Context, x, y, step float64, count int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < count; i++ {
		a.session.Broadcast.SendCursor(x+float64(i)*step, y)
		if i == count-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// EditNote writes title and body into a note through a reconciler, the
// way an interactive editor would.
func (a *Agent) EditNote(ctx context.Context, itemID, title, body string) (protocol.Item, error) {
	items, err := a.content.ListItems(ctx, a.opts.RoomID)
	if err != nil {
		return protocol.Item{}, fmt.Errorf("failed to list items: %w", err)
	}

	item := protocol.Item{ID: itemID, BoardID: a.opts.RoomID, Type: protocol.ItemNote}
	for _, it := range items {
		if it.ID == itemID {
			item = it
			break
		}
	}

	a.session.Broadcast.SendFocus(item.Type, item.ID)
	r := a.session.Item(item)
	r.BeginEdit()
	if title != "" {
		r.Input(collab.FieldTitle, title)
	}
	if body != "" {
		r.Input(collab.FieldBody, body)
	}
	r.EndEdit()
	a.session.Release(item.ID)
	a.session.Broadcast.SendFocus("", "")

	a.sched.wg.Wait()
	a.mu.Lock()
	err = a.writeErr
	a.writeErr = nil
	a.mu.Unlock()
	if err != nil {
		return protocol.Item{}, err
	}
	return r.Item(), nil
}

// SaveDocument loads the room's document and overwrites it with content.
func (a *Agent) SaveDocument(ctx context.Context, content string) (protocol.Document, error) {
	editor := a.session.Document
	if editor == nil {
		return protocol.Document{}, errors.New("agent: not a document room")
	}
	if _, err := editor.Load(ctx); err != nil {
		return protocol.Document{}, fmt.Errorf("failed to load document: %w", err)
	}
	return editor.Save(ctx, content)
}
