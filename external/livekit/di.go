package livekit

import (
	"github.com/foxseedlab/telesession/internal/config"
	"github.com/foxseedlab/telesession/internal/transport"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transport.RoomService, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewRoomService(Config{
			URL:          c.LiveKitURL,
			APIKey:       c.LiveKitAPIKey,
			APISecret:    c.LiveKitAPISecret,
			TokenTTL:     c.LiveKitTokenTTL,
			OutputPrefix: c.RecordingOutputPrefix,
		}), nil
	})
}
