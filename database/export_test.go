package database

import "dbx/params"

// SetCommitParams replaces the parameter block commit for one test and
// returns the function restoring it.
func SetCommitParams(fn func(p *params.Params, db, field, dir string) error) func() {
	prev := commitParams
	commitParams = fn
	return func() { commitParams = prev }
}
