/*
Package types provides the core interfaces and data structures shared across
the steambridge binding layer.

# Architecture Overview

steambridge is layered, with the Backend interface as the seam between the
public facade and the two interchangeable client implementations:

	┌─────────────────────────────────────────────┐
	│               Facade (pkg/steam)            │
	│  Init / Shutdown / Status / RunCallbacks    │
	└─────────────────────────────────────────────┘
	          │                       │
	┌─────────┴──────────┐ ┌──────────┴──────────┐
	│    Achievements    │ │        Stats        │
	│ (internal/achieve- │ │  (internal/stats)   │
	│      ments)        │ │                     │
	└─────────┬──────────┘ └──────────┬──────────┘
	          │      types.Backend    │
	┌─────────┴───────────────────────┴──────────┐
	│   native binding          offline mock     │
	│ (internal/native)        (internal/mock)   │
	└─────────────────────────────────────────────┘

The native implementation loads the platform's steam_api shared library,
binds the flat-API symbols once, and marshals every call through a single
serialized adapter. The mock implementation answers from a canned catalogue
and persists developer state locally, so applications run unmodified without
a Steam client present.

Asynchronous operations follow the request/poll convention: a request method
returns an APICall handle, the callback queue is pumped via RunCallbacks, and
completion is observed through CallCompleted. The internal/callbacks tracker
turns that into a bounded wait.
*/
package types
