package transport

import (
	"context"
	"errors"
	"time"
)

var ErrUnavailable = errors.New("transport unavailable")

type RoomHandle struct {
	Name string
	SID  string
}

type RecordingHandle struct {
	ID        string
	Room      string
	StartedAt time.Time
}

type RoomOptions struct {
	MaxParticipants     int
	EmptyTimeout        time.Duration
	EnableRecording     bool
	EnableTranscription bool
	EnableScreenShare   bool
	Encrypted           bool
	Metadata            map[string]string
}

type JoinGrant struct {
	Identity   string
	Name       string
	CanPublish bool
	CanShare   bool
}

type RoomService interface {
	OpenRoom(ctx context.Context, sessionID string, opts RoomOptions) (RoomHandle, error)
	CloseRoom(ctx context.Context, room RoomHandle) error
	StartRecording(ctx context.Context, room RoomHandle) (RecordingHandle, error)
	StopRecording(ctx context.Context, rec RecordingHandle) (time.Duration, error)
	IssueJoinToken(room RoomHandle, grant JoinGrant) (string, error)
}
