package ratel

import (
	"keybunker.lol/lol"
)

type (
	by = []byte
	st = string
	er = error
	no = int
)

var errorf = lol.Main.Errorf
