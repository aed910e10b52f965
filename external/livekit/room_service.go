package livekit

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/foxseedlab/telesession/internal/transport"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

const roomNamePrefix = "telehealth-"

type roomAPI interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
	DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error)
}

type egressAPI interface {
	StartRoomCompositeEgress(ctx context.Context, req *livekit.RoomCompositeEgressRequest) (*livekit.EgressInfo, error)
	StopEgress(ctx context.Context, req *livekit.StopEgressRequest) (*livekit.EgressInfo, error)
}

type Config struct {
	URL          string
	APIKey       string
	APISecret    string
	TokenTTL     time.Duration
	OutputPrefix string
}

// RoomService maps sessions onto LiveKit rooms and recordings onto room
// composite egress.
type RoomService struct {
	rooms        roomAPI
	egress       egressAPI
	apiKey       string
	apiSecret    string
	tokenTTL     time.Duration
	outputPrefix string
	now          func() time.Time
}

func NewRoomService(cfg Config) transport.RoomService {
	return &RoomService{
		rooms:        lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		egress:       lksdk.NewEgressClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		tokenTTL:     cfg.TokenTTL,
		outputPrefix: cfg.OutputPrefix,
		now:          time.Now,
	}
}

func roomName(sessionID string) string {
	return roomNamePrefix + sessionID
}

func (s *RoomService) OpenRoom(ctx context.Context, sessionID string, opts transport.RoomOptions) (transport.RoomHandle, error) {
	metadata, err := json.Marshal(roomMetadata(sessionID, opts))
	if err != nil {
		return transport.RoomHandle{}, fmt.Errorf("encode room metadata: %w", err)
	}
	room, err := s.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            roomName(sessionID),
		EmptyTimeout:    uint32(opts.EmptyTimeout / time.Second),
		MaxParticipants: uint32(opts.MaxParticipants),
		Metadata:        string(metadata),
	})
	if err != nil {
		return transport.RoomHandle{}, err
	}
	return transport.RoomHandle{Name: room.GetName(), SID: room.GetSid()}, nil
}

func (s *RoomService) CloseRoom(ctx context.Context, room transport.RoomHandle) error {
	_, err := s.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: room.Name})
	return err
}

func (s *RoomService) StartRecording(ctx context.Context, room transport.RoomHandle) (transport.RecordingHandle, error) {
	filepath := path.Join(s.outputPrefix, room.Name, "{time}.mp4")
	info, err := s.egress.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
		RoomName: room.Name,
		Layout:   "grid",
		FileOutputs: []*livekit.EncodedFileOutput{
			{FileType: livekit.EncodedFileType_MP4, Filepath: filepath},
		},
	})
	if err != nil {
		return transport.RecordingHandle{}, err
	}
	startedAt := s.now()
	if ns := info.GetStartedAt(); ns > 0 {
		startedAt = time.Unix(0, ns)
	}
	return transport.RecordingHandle{ID: info.GetEgressId(), Room: room.Name, StartedAt: startedAt}, nil
}

func (s *RoomService) StopRecording(ctx context.Context, rec transport.RecordingHandle) (time.Duration, error) {
	info, err := s.egress.StopEgress(ctx, &livekit.StopEgressRequest{EgressId: rec.ID})
	if err != nil {
		return 0, err
	}
	return egressDuration(info, rec.StartedAt, s.now()), nil
}

func (s *RoomService) IssueJoinToken(room transport.RoomHandle, grant transport.JoinGrant) (string, error) {
	canPublish := grant.CanPublish
	canSubscribe := true
	canPublishData := true
	videoGrant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           room.Name,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}
	if grant.CanPublish && !grant.CanShare {
		videoGrant.CanPublishSources = []string{"camera", "microphone"}
	}

	at := auth.NewAccessToken(s.apiKey, s.apiSecret)
	at.AddGrant(videoGrant).
		SetIdentity(grant.Identity).
		SetName(grant.Name).
		SetValidFor(s.tokenTTL)
	return at.ToJWT()
}

// egressDuration prefers LiveKit's own timestamps; egress often reports EndedAt
// only once the upload finishes, so wall-clock time covers the gap.
func egressDuration(info *livekit.EgressInfo, startedAt, now time.Time) time.Duration {
	start := info.GetStartedAt()
	end := info.GetEndedAt()
	if start > 0 && end > start {
		return time.Duration(end - start)
	}
	if start > 0 {
		startedAt = time.Unix(0, start)
	}
	if now.After(startedAt) {
		return now.Sub(startedAt)
	}
	return 0
}

func roomMetadata(sessionID string, opts transport.RoomOptions) map[string]string {
	meta := map[string]string{
		"session_id":     sessionID,
		"recording":      strconv.FormatBool(opts.EnableRecording),
		"transcription":  strconv.FormatBool(opts.EnableTranscription),
		"screen_sharing": strconv.FormatBool(opts.EnableScreenShare),
		"encryption":     strconv.FormatBool(opts.Encrypted),
	}
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	return meta
}
