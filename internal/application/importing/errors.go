package importing

import "errors"

var (
	ErrInvalidResource = errors.New("invalid resource")
	ErrInvalidSource   = errors.New("invalid import source")
	ErrJobNotFound     = errors.New("import job not found")
)
