package specs

import (
	_ "embed"
)

//go:embed ocfl_1.1.md
var OCFL1_1 []byte

//go:embed ocfl_extensions_1.0.md
var OCFLExtensions1_0 []byte
