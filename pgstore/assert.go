package pgstore

import (
	tokenforge "github.com/sci-bono/tokenforge"
)

var (
	_ tokenforge.BlacklistStore = (*BlacklistStore)(nil)
	_ tokenforge.FamilyStore    = (*FamilyStore)(nil)
)
