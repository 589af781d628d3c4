// internal/events/nats.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// SubjectMatchFinished carries every finished match. Leaderboard and ghost
// indexers subscribe to it.
const SubjectMatchFinished = "codebreak.match.finished"

// MatchFinished is the announcement payload. It omits the guess log, which
// is only archived by the historian.
type MatchFinished struct {
	MatchID  string    `json:"matchId"`
	RoomID   string    `json:"roomId"`
	Kind     string    `json:"kind"`
	Rule     string    `json:"rule"`
	WinnerID string    `json:"winnerId,omitempty"`
	Reason   string    `json:"reason"`
	Players  []string  `json:"players"`
	Guesses  int       `json:"guesses"`
	EndedAt  time.Time `json:"endedAt"`
}

// NewMatchFinished summarizes rec.
func NewMatchFinished(rec models.MatchRecord) MatchFinished {
	players := make([]string, 0, len(rec.Participants))
	for _, p := range rec.Participants {
		players = append(players, p.PlayerID)
	}
	return MatchFinished{
		MatchID:  rec.ID.String(),
		RoomID:   rec.RoomID,
		Kind:     rec.Kind,
		Rule:     rec.Rule,
		WinnerID: rec.WinnerID,
		Reason:   rec.Reason,
		Players:  players,
		Guesses:  len(rec.Guesses),
		EndedAt:  rec.EndedAt,
	}
}

// Announcer publishes match announcements over core NATS. Delivery is
// at-most-once; the historian queue remains the durable path.
type Announcer struct {
	conn   *nats.Conn
	logger *logrus.Logger
}

// Connect dials url with unlimited reconnects.
func Connect(url string, logger *logrus.Logger) (*Announcer, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("codebreak-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &Announcer{conn: conn, logger: logger}, nil
}

// SaveMatchRecord announces rec on SubjectMatchFinished.
func (a *Announcer) SaveMatchRecord(_ context.Context, rec models.MatchRecord) error {
	data, err := json.Marshal(NewMatchFinished(rec))
	if err != nil {
		return fmt.Errorf("marshal match announcement: %w", err)
	}
	if err := a.conn.Publish(SubjectMatchFinished, data); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectMatchFinished, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (a *Announcer) Close() {
	if err := a.conn.Drain(); err != nil {
		a.logger.WithError(err).Warn("nats drain failed")
		a.conn.Close()
	}
}
