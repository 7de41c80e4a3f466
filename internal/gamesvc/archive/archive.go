package archive

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/woprlabs/wopr-services/internal/comm"
	"github.com/woprlabs/wopr-services/internal/gamesvc/models"
	"github.com/woprlabs/wopr-services/internal/safefs"
)

const (
	incomingDir    = "incoming"
	archiveDir     = "archive"
	archiveTimeout = 120 * time.Second
)

type sessionStore interface {
	GetSessionByID(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	ListPlays(ctx context.Context, sessionID uuid.UUID) ([]*models.Play, error)
	ListArchivable(ctx context.Context) ([]*models.Session, error)
	SetStatus(ctx context.Context, sessionID uuid.UUID, status models.SessionStatus) error
}

type eventStore interface {
	Append(ctx context.Context, gameID uuid.UUID, captureID *uuid.UUID, evType, actor string, payload map[string]interface{}) (*models.Event, error)
}

type publisher interface {
	Publish(topic string, payload []byte) error
}

// ArchivedFile records one file that made it into the archive and how
// it got there ("rename" or "copy").
type ArchivedFile struct {
	Filename string `json:"filename"`
	Strategy string `json:"strategy"`
}

type FailedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Report is the per-file outcome of one archival run.
type Report struct {
	SessionID uuid.UUID      `json:"session_id"`
	Archived  []ArchivedFile `json:"archived"`
	Failed    []FailedFile   `json:"failed"`
}

// Archiver moves a closed session's files from the incoming directory
// into archive/<session-id>/, one file at a time. A file that fails
// never aborts the batch; it is reported and the session stays CLOSING
// so the next sweep retries it.
type Archiver struct {
	sessions sessionStore
	events   eventStore
	fs       *safefs.SafeFS
	pub      publisher
}

func New(sessions sessionStore, events eventStore, fs *safefs.SafeFS, pub publisher) *Archiver {
	return &Archiver{
		sessions: sessions,
		events:   events,
		fs:       fs,
		pub:      pub,
	}
}

func (a *Archiver) Subscribe(conn *nats.Conn) (*nats.Subscription, error) {
	return conn.QueueSubscribe(comm.TopicArchiveJobs, comm.WorkerQueueGroup, a.handleArchiveMsg)
}

func (a *Archiver) handleArchiveMsg(msgNats *nats.Msg) {
	m := comm.ArchiveSessionMessage{}
	if err := json.Unmarshal(msgNats.Data, &m); err != nil {
		log.Errorf("Error decoding archive job message %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if _, err := a.ArchiveSession(ctx, m.SessionID); err != nil {
		log.Errorf("Error archiving session %s: %s", m.SessionID, err)
	}
}

// ArchiveSession runs one best-effort archival pass over the session's
// files. Archiving an already ARCHIVED session is a no-op with an empty
// report. The session flips to ARCHIVED only when every file landed;
// partial runs leave it CLOSING.
func (a *Archiver) ArchiveSession(ctx context.Context, sessionID uuid.UUID) (*Report, error) {
	sess, err := a.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	report := &Report{SessionID: sessionID}
	if sess.Status == models.SessionArchived {
		return report, nil
	}

	plays, err := a.sessions.ListPlays(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	destDir := path.Join(archiveDir, sessionID.String())
	if err := a.fs.Mkdir(destDir); err != nil {
		return nil, err
	}

	for _, play := range plays {
		src := path.Join(incomingDir, play.Filename)
		dst := path.Join(destDir, play.Filename)
		strategy, err := a.fs.Move(src, dst)
		if err != nil {
			var exists *safefs.ExistsError
			var notFound *safefs.NotFoundError
			switch {
			case errors.As(err, &exists):
				// complete destination plus a leftover source from an
				// interrupted run; keep the archived copy
				if rmErr := a.fs.RemoveFile(src); rmErr != nil {
					log.Warnf("session %s: leftover %s not removed: %s", sessionID, play.Filename, rmErr)
				}
				report.Archived = append(report.Archived, ArchivedFile{Filename: play.Filename, Strategy: "already-archived"})
				continue
			case errors.As(err, &notFound):
				if ok, statErr := a.fs.Exists(dst); statErr == nil && ok {
					report.Archived = append(report.Archived, ArchivedFile{Filename: play.Filename, Strategy: "already-archived"})
					continue
				}
			}
			log.Warnf("session %s: could not archive %s: %s", sessionID, play.Filename, err)
			report.Failed = append(report.Failed, FailedFile{Filename: play.Filename, Reason: err.Error()})
			continue
		}
		report.Archived = append(report.Archived, ArchivedFile{Filename: play.Filename, Strategy: strategy})
	}

	if len(report.Failed) > 0 {
		log.Warnf("session %s archived partially: %d ok, %d failed", sessionID, len(report.Archived), len(report.Failed))
		return report, nil
	}

	if err := a.sessions.SetStatus(ctx, sessionID, models.SessionArchived); err != nil {
		return report, err
	}

	if sess.GameID != nil {
		payload := map[string]interface{}{
			"session_id":     sessionID.String(),
			"archived_count": len(report.Archived),
		}
		if _, err := a.events.Append(ctx, *sess.GameID, nil, models.EventSessionArchived, "system", payload); err != nil {
			log.Errorf("Error recording session archive event for %s: %s", sessionID, err)
		}
		a.publishNotice(*sess.GameID, report)
	}
	return report, nil
}

// Sweep enqueues an archive job for every CLOSING session. Wired to the
// worker's cron so stuck or partially archived sessions get retried.
func (a *Archiver) Sweep(ctx context.Context) error {
	sessions, err := a.sessions.ListArchivable(ctx)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		body, err := json.Marshal(comm.ArchiveSessionMessage{SessionID: sess.ID})
		if err != nil {
			return err
		}
		if err := a.pub.Publish(comm.TopicArchiveJobs, body); err != nil {
			return err
		}
	}
	if len(sessions) > 0 {
		log.Infof("archive sweep enqueued %d session(s)", len(sessions))
	}
	return nil
}

func (a *Archiver) publishNotice(gameID uuid.UUID, report *Report) {
	if a.pub == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		log.Errorf("Error encoding archive notice %s", err)
		return
	}
	notice := comm.GameNotice{GameID: gameID, Event: "event", Data: data}
	body, err := json.Marshal(notice)
	if err != nil {
		log.Errorf("Error encoding archive notice %s", err)
		return
	}
	if err := a.pub.Publish(comm.TopicGameNotify, body); err != nil {
		log.Errorf("Error publishing archive notice %s", err)
	}
}
