package contentstoreutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/engram/pkg/contentstore"
	"github.com/papercomputeco/engram/pkg/contentstore/inmemory"
	"github.com/papercomputeco/engram/pkg/contentstore/libsql"
	"github.com/papercomputeco/engram/pkg/contentstore/postgres"
	"github.com/papercomputeco/engram/pkg/contentstore/sqlite"
)

type NewDriverOpts struct {
	DriverType string
	Path       string
	ConnStr    string
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (contentstore.Driver, error) {
	switch o.DriverType {
	case "inmemory", "":
		return inmemory.NewDriver(), nil
	case "sqlite":
		return sqlite.NewDriver(o.Path)
	case "postgres":
		return postgres.NewDriver(ctx, o.ConnStr)
	case "libsql":
		return libsql.NewDriver(o.ConnStr)
	default:
		return nil, fmt.Errorf("unsupported content store driver: %s", o.DriverType)
	}
}
