package pipelinescope

import "github.com/coral-mesh/pipelinescope/internal/callstack"

// WrapPort replaces the port that receives enter and exit events with wrap(port).
func WrapPort(e *Engine, wrap func(callstack.Port) callstack.Port) {
	e.port = wrap(e.port)
}
