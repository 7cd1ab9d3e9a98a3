// Package all registers every link transport.
package all

import (
	_ "github.com/robotalks/alcolock/pkg/link/loopback"
	_ "github.com/robotalks/alcolock/pkg/link/mqtt"
	_ "github.com/robotalks/alcolock/pkg/link/stream"
	_ "github.com/robotalks/alcolock/pkg/link/websocket"
)
