package session

import (
	"github.com/foxseedlab/telesession/internal/audit"
	"github.com/foxseedlab/telesession/internal/config"
	"github.com/foxseedlab/telesession/internal/directory"
	"github.com/foxseedlab/telesession/internal/notification"
	"github.com/foxseedlab/telesession/internal/repository"
	"github.com/foxseedlab/telesession/internal/roster"
	"github.com/foxseedlab/telesession/internal/transport"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		roles := make([]roster.Role, 0, len(cfg.RecordingConsentRoles))
		for _, r := range cfg.RecordingConsentRoles {
			role, err := roster.ParseRole(r)
			if err != nil {
				return nil, err
			}
			roles = append(roles, role)
		}
		retry := transport.DefaultRetryPolicy()
		retry.MaxRetries = cfg.TransportRetryMax
		retry.InitialInterval = cfg.TransportRetryInitialInterval

		return NewManager(cfg, Dependencies{
			Transport:     do.MustInvoke[transport.RoomService](i),
			Audit:         audit.NewRecorder(repo),
			Analytics:     repo,
			Directory:     do.MustInvoke[directory.Lookup](i),
			Notifier:      do.MustInvoke[notification.Notifier](i),
			Retry:         retry,
			InvitationTTL: cfg.InvitationTTL,
			ConsentRoles:  roles,
		}), nil
	})
}
