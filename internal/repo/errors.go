package repo

import "github.com/oxenhq/oxen-core/internal/oxerr"

func isNotFoundLookup(err error) bool {
	return oxerr.Is(err, oxerr.KindNotFound)
}
