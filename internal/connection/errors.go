package connection

import "errors"

var errClosed = errors.New("connection: closed")
