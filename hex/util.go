package hex

type (
	by = []byte
	st = string
	er = error
)
