package location

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/fieldserve/internal/dispatch/domain"
)

// Reporter applies a worker position report to a tracking session.
type Reporter interface {
	ReportLocation(ctx context.Context, id uuid.UUID, lat, lng float64, ts time.Time) error
}

// PositionSink receives raw worker positions for the dispatch directory so
// workers stay searchable between jobs. Optional.
type PositionSink interface {
	UpdatePosition(id uuid.UUID, point domain.GeoPoint)
}

// Server ingests worker location streams and forwards them to the tracker.
type Server struct {
	reporter  Reporter
	positions PositionSink
	logger    *zap.Logger
}

// NewServer constructs the ingest server. positions may be nil.
func NewServer(reporter Reporter, positions PositionSink, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{reporter: reporter, positions: positions, logger: logger}
}

// StreamLocation consumes position reports until the client closes the
// stream. Malformed reports are skipped; session-level rejections (unknown or
// terminal sessions, stale timestamps) are logged and the stream continues so
// one bad report cannot take down a device's connection.
func (s *Server) StreamLocation(stream Location_StreamLocationServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}

		sessionID, err := uuid.Parse(msg.SessionId)
		if err != nil {
			s.logger.Debug("malformed session id in stream", zap.String("session_id", msg.SessionId))
			continue
		}
		ts := time.Unix(msg.Ts, 0).UTC()
		if msg.Ts == 0 {
			ts = time.Now().UTC()
		}

		if err := s.reporter.ReportLocation(stream.Context(), sessionID, msg.Lat, msg.Lng, ts); err != nil {
			switch {
			case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSessionTerminal):
				s.logger.Debug("report not applied", zap.Error(err), zap.String("session_id", sessionID.String()))
			case errors.Is(err, domain.ErrInvalidCoordinate):
				s.logger.Warn("invalid coordinates in stream", zap.String("session_id", sessionID.String()))
			default:
				return err
			}
			continue
		}

		if s.positions != nil {
			if workerID, err := uuid.Parse(msg.WorkerId); err == nil {
				s.positions.UpdatePosition(workerID, domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng})
			}
		}
	}
}
