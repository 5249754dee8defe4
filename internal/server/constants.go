package server

import (
	"bytes"
	"sync"
	"time"
)

// Request and socket limits
const (
	maxJSONBody      = 64 * 1024 // editor, contact and command bodies
	stripWaitTimeout = 5 * time.Second
	commandTimeout   = 10 * time.Second
	wsWriteTimeout   = 5 * time.Second
	wsPongTimeout    = 60 * time.Second
	wsPingInterval   = (wsPongTimeout * 9) / 10
	wsSendQueue      = 16
	minTextSize      = 8
	maxTextSize      = 200
)

// countdownOptions are the countdown lengths the capture screen offers.
var countdownOptions = []int{0, 3, 5, 10}

// Buffer pool for JSON responses and socket events - reuse byte buffers
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}
