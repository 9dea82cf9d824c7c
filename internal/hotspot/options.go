package hotspot

import (
	"errors"
	"log"
)

// Sentinel errors returned by constructors and scanners.
var (
	ErrNilPointSet        = errors.New("point set is nil")
	ErrEmptyExtent        = errors.New("extent is empty")
	ErrInvalidCellSize    = errors.New("cell size must be positive")
	ErrUnknownFitnessKind = errors.New("unknown fitness kind")
	ErrUnknownStrategy    = errors.New("unknown scan strategy")
)

// Options carries the ambient collaborators shared by every engine component.
type Options struct {
	// Logf receives warnings about substituted parameters. Defaults to log.Printf.
	Logf func(format string, args ...interface{})
}

func (o Options) logf(format string, args ...interface{}) {
	if o.Logf == nil {
		log.Printf(format, args...)
		return
	}
	o.Logf(format, args...)
}
