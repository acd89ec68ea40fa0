package pipcmd

import (
	"go.brendoncarroll.net/star"

	"pipdataplane.org/pip/pipserve"
	"pipdataplane.org/pip/pipstore"
)

var serve = star.Command{
	Metadata: star.Metadata{
		Short: "serve the stored programs over HTTP",
	},
	Flags: []star.IParam{DBParam, ListenerParam, maxStepsParam, onMissParam},
	F: func(c star.Context) error {
		s := pipstore.New(DBParam.Load(c))
		lis := ListenerParam.Load(c)
		return pipserve.Serve(cmdContext(c), lis, s, BuildConfig(c))
	},
}
