package directory

import (
	"github.com/foxseedlab/telesession/internal/directory"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (directory.Lookup, error) {
		p := do.MustInvoke[*pgxpool.Pool](i)
		return NewPostgresDirectory(p), nil
	})
}
