package notification

import (
	"github.com/foxseedlab/telesession/internal/config"
	"github.com/foxseedlab/telesession/internal/notification"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (notification.Notifier, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPNotifier(c.NotificationWebhookURL), nil
	})
}
